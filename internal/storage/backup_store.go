// Package storage keeps pre-import safety copies of the live database.
// A copy is written and flushed before a destructive import begins; it
// is an independent safety net on top of the import transaction's
// rollback, not the rollback mechanism itself.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("storage: backup not found")

type BackupStore struct{ dir string }

func NewBackupStore(dir string) *BackupStore {
	_ = os.MkdirAll(dir, 0700)
	return &BackupStore{dir: dir}
}

func (b *BackupStore) Dir() string { return b.dir }

// Put copies srcPath into the store and fsyncs both the copy and the
// directory entry, so a crash immediately after Put cannot lose it.
// Returns the backup's path.
func (b *BackupStore) Put(srcPath string) (string, error) {
	// UnixNano keeps names strictly ordered even for rapid successive
	// backups; List sorts lexically.
	name := fmt.Sprintf("pre-import-%d-%s.db", time.Now().UnixNano(), uuid.NewString()[:8])
	dst := filepath.Join(b.dir, name)

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("storage: open source: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("storage: create backup: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("storage: copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("storage: sync: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("storage: close: %w", err)
	}

	if d, err := os.Open(b.dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return dst, nil
}

// List returns backup paths, newest first.
func (b *BackupStore) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(b.dir, "pre-import-*.db"))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// Latest returns the newest backup's path.
func (b *BackupStore) Latest() (string, error) {
	backups, err := b.List()
	if err != nil {
		return "", err
	}
	if len(backups) == 0 {
		return "", ErrNotFound
	}
	return backups[0], nil
}

// Prune deletes all but the newest keep backups.
func (b *BackupStore) Prune(keep int) error {
	backups, err := b.List()
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	for _, p := range backups[min(keep, len(backups)):] {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("storage: prune %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}
