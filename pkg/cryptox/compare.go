package cryptox

// ConstantTimeEqual reports whether a and b hold the same bytes.
//
// Lengths must match. Every byte pair is XORed into an accumulator and the
// loop never exits early, so the running time depends only on len(a).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	var acc byte
	for i := range a {
		acc |= a[i] ^ b[i]
	}
	return acc == 0
}

// ConstantTimeEqualString is ConstantTimeEqual over the bytes of two strings.
func ConstantTimeEqualString(a, b string) bool {
	return ConstantTimeEqual([]byte(a), []byte(b))
}
