package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/zianansar/proposal-writer-sub001/internal/crypto"
	"github.com/zianansar/proposal-writer-sub001/internal/store"
)

// TempPattern names temp extraction files so a startup sweep can
// recognize orphans left by a crashed import.
const TempPattern = "proposal-import-*.tmp"

// ReadMetadata parses only the cleartext header. No passphrase is
// required and the encrypted payload is never touched.
func ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("archive: open: %w", err)
	}
	defer f.Close()
	h, _, err := readHeader(bufio.NewReader(f))
	if err != nil {
		return Metadata{}, err
	}
	return h.Metadata, nil
}

// Extraction is an archive's payload copied, still encrypted, into a
// temp file. The owner must call Cleanup on every exit path.
type Extraction struct {
	Metadata  Metadata
	Salt      []byte
	TempPath  string
	headerRaw []byte
}

// Extract copies the encrypted payload into a temp file under tmpDir
// (the OS temp dir when empty). Extraction does not decrypt; the
// payload stays ciphertext until OpenPreview.
func Extract(path, tmpDir string) (*Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	h, headerRaw, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	tmp, err := os.CreateTemp(tmpDir, TempPattern)
	if err != nil {
		return nil, fmt.Errorf("archive: create temp: %w", err)
	}
	n, err := io.Copy(tmp, br)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	if n == 0 {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedArchive)
	}
	return &Extraction{
		Metadata:  h.Metadata,
		Salt:      h.Salt,
		TempPath:  tmp.Name(),
		headerRaw: headerRaw,
	}, nil
}

// Cleanup removes the temp extraction file. Best-effort; a missing file
// is not an error.
func (e *Extraction) Cleanup() error {
	if e == nil || e.TempPath == "" {
		return nil
	}
	err := os.Remove(e.TempPath)
	e.TempPath = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Preview is a decrypted, decoded snapshot held in memory for
// inspection before any import decision. Read-only; it never touches
// the live store.
type Preview struct {
	Metadata Metadata
	Snapshot *store.Snapshot
}

// OpenPreview derives the key from passphrase and the archive's own
// salt, then decrypts and decodes the extracted payload. Decryption is
// the passphrase check: a wrong passphrase and a corrupted payload both
// surface as ErrDecryptionFailed, deliberately indistinguishable.
func (e *Extraction) OpenPreview(passphrase *crypto.Secret) (*Preview, error) {
	ciphertext, err := os.ReadFile(e.TempPath)
	if err != nil {
		return nil, fmt.Errorf("archive: read extracted payload: %w", err)
	}

	derived, err := crypto.DeriveKey(passphrase.Bytes(), e.Salt)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroKey(&derived)
	key, err := crypto.ArchiveKey(&derived)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroKey(&key)

	compressed, err := crypto.Open(key[:], ciphertext, e.headerRaw)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	raw, err := inflate(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	var snap store.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}

	// Integrity invariant: the cleartext metadata must agree with what
	// the payload actually contains. The AEAD already guarantees
	// authenticity, so a mismatch means a buggy producer.
	counts, err := snap.Counts()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	if counts.Jobs != e.Metadata.Jobs || counts.Proposals != e.Metadata.Proposals || counts.Revisions != e.Metadata.Revisions {
		return nil, fmt.Errorf("%w: metadata counts disagree with payload", ErrMalformedArchive)
	}
	return &Preview{Metadata: e.Metadata, Snapshot: &snap}, nil
}
