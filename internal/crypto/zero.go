package crypto

// Zero overwrites key material in place. Call it as soon as a KEK, DEK, or
// password copy is no longer needed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Zero32 wipes a fixed-size key array.
func Zero32(x *[32]byte) {
	for i := range x {
		x[i] = 0
	}
}
