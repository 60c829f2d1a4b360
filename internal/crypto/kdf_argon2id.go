package crypto

import (
	"errors"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Fixed so that re-derivation on any machine
// reproduces the same key; tuned for a few hundred milliseconds of
// interactive unlock on commodity hardware.
const (
	KDFMemoryKiB  uint32 = 64 * 1024
	KDFIterations uint32 = 3
	KDFParallel   uint8  = 4

	KeySize = 32

	// MinPassphraseLen is the shortest passphrase accepted for key
	// derivation, in bytes.
	MinPassphraseLen = 12
)

var ErrPassphraseTooShort = errors.New("crypto: passphrase too short")

// DeriveKey stretches a passphrase into a 32-byte symmetric key.
// Deterministic for a fixed (passphrase, salt) pair; there is no stored
// password hash anywhere, so "does the derived key decrypt" is the only
// passphrase check in the system.
func DeriveKey(passphrase, salt []byte) (key [KeySize]byte, err error) {
	if len(passphrase) < MinPassphraseLen {
		return key, ErrPassphraseTooShort
	}
	raw := argon2.IDKey(passphrase, salt, KDFIterations, KDFMemoryKiB, KDFParallel, KeySize)
	copy(key[:], raw)
	Zero(raw)
	return key, nil
}
