package crypto

// Zero overwrites a byte slice with zeros. Works on every platform;
// the compiler cannot elide the writes because the slice escapes.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroKey overwrites a fixed-size key array in place.
func ZeroKey(k *[KeySize]byte) {
	for i := range k {
		k[i] = 0
	}
}
