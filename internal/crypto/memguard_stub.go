//go:build !linux && !darwin

package crypto

// Memory locking is best-effort; platforms without mlock still get
// zero-on-destroy.

func lockMemory(b []byte) error   { return nil }
func unlockMemory(b []byte) error { return nil }
