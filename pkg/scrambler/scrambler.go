// Package scrambler implements the CCSDS pseudo-random sequence used to
// whiten frames before they go on air.
//
// The sequence comes from h(x) = x^8 + x^7 + x^5 + x^3 + 1 with the shift
// register seeded to all ones on every call, so the same length always
// produces the same bytes and XOR-ing twice restores the input.
package scrambler

// seed is the all-ones shift register state
const seed = 0xFF

// GenerateSequence returns length bytes of the CCSDS sequence, MSB first
func GenerateSequence(length int) []byte {
	if length <= 0 {
		return []byte{}
	}
	seq := make([]byte, length)
	state := uint16(seed)
	for i := 0; i < length*8; i++ {
		if state&1 == 1 {
			seq[i/8] |= 0x80 >> uint(i%8)
		}
		fb := (state>>7 ^ state>>5 ^ state>>3 ^ state) & 1
		state = state>>1 | fb<<7
	}
	return seq
}

// Apply XORs seq into data in place. Bytes of data past the end of seq
// are left untouched.
func Apply(data, seq []byte) {
	n := len(data)
	if len(seq) < n {
		n = len(seq)
	}
	for i := 0; i < n; i++ {
		data[i] ^= seq[i]
	}
}

// Whiten returns a scrambled copy of data. Calling it on its own output
// restores the original.
func Whiten(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	Apply(out, GenerateSequence(len(data)))
	return out
}
