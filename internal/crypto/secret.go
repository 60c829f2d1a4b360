package crypto

// Secret owns one sensitive byte buffer (a passphrase or a derived key)
// for the duration of a single operation. The buffer is copied on
// construction, locked into RAM where the platform allows, and
// overwritten on Destroy. Callers defer Destroy immediately after
// construction so every exit path wipes it.
type Secret struct {
	buf []byte
}

// NewSecret copies b into a guarded buffer. The caller keeps ownership
// of b and should wipe it separately if it is sensitive.
func NewSecret(b []byte) *Secret {
	cp := make([]byte, len(b))
	copy(cp, b)
	_ = lockMemory(cp)
	return &Secret{buf: cp}
}

// NewSecretString is NewSecret for string input. The string itself
// cannot be wiped; use byte slices upstream where possible.
func NewSecretString(s string) *Secret {
	return NewSecret([]byte(s))
}

// Bytes exposes the underlying buffer. Valid only until Destroy; never
// retain or log it.
func (s *Secret) Bytes() []byte { return s.buf }

func (s *Secret) Len() int { return len(s.buf) }

// Destroy zeroes and releases the buffer. Safe to call more than once.
func (s *Secret) Destroy() {
	if s == nil || s.buf == nil {
		return
	}
	Zero(s.buf)
	_ = unlockMemory(s.buf)
	s.buf = nil
}
