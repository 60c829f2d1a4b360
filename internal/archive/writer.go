package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zianansar/proposal-writer-sub001/internal/crypto"
	"github.com/zianansar/proposal-writer-sub001/internal/salt"
	"github.com/zianansar/proposal-writer-sub001/internal/store"
)

// Write serializes snap into an encrypted archive at path. Every export
// gets a fresh salt, independent of the installation's unlock salt, so
// the archive is self-contained and importable on any machine that
// knows the passphrase. The file appears atomically via rename.
func Write(path string, snap *store.Snapshot, passphrase *crypto.Secret) (Metadata, error) {
	var meta Metadata

	counts, err := snap.Counts()
	if err != nil {
		return meta, err
	}
	meta = Metadata{
		Jobs:          counts.Jobs,
		Proposals:     counts.Proposals,
		Revisions:     counts.Revisions,
		ExportedAt:    snap.ExportedAt,
		SchemaVersion: snap.SchemaVersion,
	}

	exportSalt, err := salt.Generate()
	if err != nil {
		return meta, err
	}

	derived, err := crypto.DeriveKey(passphrase.Bytes(), exportSalt)
	if err != nil {
		return meta, err
	}
	defer crypto.ZeroKey(&derived)
	key, err := crypto.ArchiveKey(&derived)
	if err != nil {
		return meta, err
	}
	defer crypto.ZeroKey(&key)

	raw, err := json.Marshal(snap)
	if err != nil {
		return meta, fmt.Errorf("archive: marshal snapshot: %w", err)
	}
	compressed, err := deflate(raw)
	if err != nil {
		return meta, fmt.Errorf("archive: compress payload: %w", err)
	}

	tmp := path + ".partial"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return meta, fmt.Errorf("archive: create: %w", err)
	}
	defer os.Remove(tmp)

	w := bufio.NewWriter(f)
	headerRaw, err := writeHeader(w, header{
		FormatVersion: FormatVersion,
		Metadata:      meta,
		Salt:          exportSalt,
	})
	if err != nil {
		f.Close()
		return meta, fmt.Errorf("archive: write header: %w", err)
	}

	sealed, err := crypto.Seal(key[:], compressed, headerRaw)
	if err != nil {
		f.Close()
		return meta, fmt.Errorf("archive: encrypt payload: %w", err)
	}
	if _, err := w.Write(sealed); err != nil {
		f.Close()
		return meta, fmt.Errorf("archive: write payload: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return meta, fmt.Errorf("archive: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return meta, fmt.Errorf("archive: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return meta, fmt.Errorf("archive: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return meta, fmt.Errorf("archive: rename: %w", err)
	}
	return meta, nil
}
