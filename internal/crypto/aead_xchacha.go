package crypto

import (
	"crypto/rand"
	"errors"

	xchacha "golang.org/x/crypto/chacha20poly1305"
)

var ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

// Seal encrypts plaintext under key with XChaCha20-Poly1305, binding
// aad into the authentication tag. Output layout: [nonce||ciphertext||tag],
// with a fresh random 24-byte nonce per call.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := xchacha.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, xchacha.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, len(nonce), len(nonce)+len(plaintext)+aead.Overhead())
	copy(out, nonce)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open reverses Seal. Authentication failure (wrong key, flipped bits,
// mismatched aad) comes back as the cipher's opaque error; callers must
// not attempt to distinguish the cause.
func Open(key, ciphertext, aad []byte) ([]byte, error) {
	aead, err := xchacha.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < xchacha.NonceSizeX+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce := ciphertext[:xchacha.NonceSizeX]
	return aead.Open(nil, nonce, ciphertext[xchacha.NonceSizeX:], aad)
}
