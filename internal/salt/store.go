// Package salt manages the per-installation key-derivation salt. The
// salt is not secret (its job is uniqueness, not secrecy), but it must
// never change once written: every previously encrypted byte depends on
// it.
package salt

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Size is the salt length in bytes.
const Size = 16

// FileName is the fixed name of the salt file inside the application's
// private data directory.
const FileName = "salt.key"

var (
	ErrInvalidSalt      = errors.New("salt: decoded salt has wrong length")
	ErrSaltExists       = errors.New("salt: salt file already exists")
	ErrGenerationFailed = errors.New("salt: random source failed")
)

// Generate produces a fresh random salt. Used once per installation and
// once per exported archive.
func Generate() ([]byte, error) {
	s := make([]byte, Size)
	if _, err := rand.Read(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return s, nil
}

// Store writes the salt as base64 text under dir, creating dir if
// absent. It refuses to overwrite an existing salt file; regenerating
// the salt would make all prior ciphertext permanently unrecoverable.
func Store(dir string, s []byte) error {
	if len(s) != Size {
		return ErrInvalidSalt
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("salt: create dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return ErrSaltExists
	}
	enc := base64.StdEncoding.EncodeToString(s)
	if err := os.WriteFile(path, []byte(enc+"\n"), 0600); err != nil {
		return fmt.Errorf("salt: write: %w", err)
	}
	return nil
}

// Load reads and decodes the salt file under dir.
func Load(dir string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("salt: read: %w", err)
	}
	s, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSalt, err)
	}
	if len(s) != Size {
		return nil, ErrInvalidSalt
	}
	return s, nil
}

// Ensure returns the installation salt, creating it on first use. This
// is the only entry point callers should use for the unlock salt, so a
// written salt can never be regenerated by construction.
func Ensure(dir string) ([]byte, error) {
	if s, err := Load(dir); err == nil {
		return s, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	s, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := Store(dir, s); err != nil {
		return nil, err
	}
	return s, nil
}
