package crypto

// Zeroize overwrites b with zeros. Go gives no guarantee about copies the
// runtime may have made, so this only shortens the lifetime of the slice
// that is cleared.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
