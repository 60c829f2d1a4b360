package salt

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(s) != Size {
		t.Fatalf("salt length %d, want %d", len(s), Size)
	}
	if err := Store(dir, s); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(s, got) {
		t.Fatal("loaded salt differs from stored salt")
	}
}

func TestStoreRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, _ := Generate()
	if err := Store(dir, s); err != nil {
		t.Fatalf("store: %v", err)
	}
	s2, _ := Generate()
	if err := Store(dir, s2); !errors.Is(err, ErrSaltExists) {
		t.Fatalf("second store: got %v, want ErrSaltExists", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(s, got) {
		t.Fatal("original salt was clobbered")
	}
}

func TestLoadRejectsWrongLength(t *testing.T) {
	dir := t.TempDir()
	// Valid base64, wrong decoded length.
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("c2hvcnQ=\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); !errors.Is(err, ErrInvalidSalt) {
		t.Fatalf("got %v, want ErrInvalidSalt", err)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("!!not base64!!"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); !errors.Is(err, ErrInvalidSalt) {
		t.Fatalf("got %v, want ErrInvalidSalt", err)
	}
}

func TestEnsureIsStable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s1, err := Ensure(dir)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	s2, err := Ensure(dir)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Fatal("Ensure regenerated an existing salt")
	}
}
