package codeword

// BinaryToGray converts a natural binary value to its reflected binary code.
func BinaryToGray(v uint16) uint16 {
	return (v >> 1) ^ v
}

// GrayToBinary converts a reflected binary code back to natural binary.
// The most significant bit passes through; every lower output bit is the
// XOR of the matching gray bit and the output bit above it.
func GrayToBinary(v uint16) uint16 {
	grayBit := uint16(1) << 15
	binary := v & grayBit
	binBit := binary
	for grayBit >>= 1; grayBit != 0; grayBit >>= 1 {
		binBit >>= 1
		binary |= binBit ^ (v & grayBit)
		binBit = binary & grayBit
	}
	return binary
}
