package codeword

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestGrayToBinary_InvertsBinaryToGray verifies the round trip over the full word.
func TestGrayToBinary_InvertsBinaryToGray(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("gray decode inverts gray encode", prop.ForAll(
		func(v uint16) bool {
			return GrayToBinary(BinaryToGray(v)) == v
		},
		gen.UInt16(),
	))

	properties.Property("gray encode inverts gray decode", prop.ForAll(
		func(v uint16) bool {
			return BinaryToGray(GrayToBinary(v)) == v
		},
		gen.UInt16(),
	))

	properties.TestingRun(t)
}

// TestGrayToBinary_PreservesTopBit verifies the MSB passes through unchanged.
func TestGrayToBinary_PreservesTopBit(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("msb is unchanged", prop.ForAll(
		func(v uint16) bool {
			return GrayToBinary(v)&0x8000 == v&0x8000
		},
		gen.UInt16(),
	))

	properties.TestingRun(t)
}

// TestRawRoundTrip verifies flat buffers survive FromRaw/Raw.
func TestRawRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("FromRaw then Raw is identity", prop.ForAll(
		func(data []uint16) bool {
			m, err := FromRaw(len(data), 1, data)
			if err != nil {
				return false
			}
			out := m.Raw()
			for i := range data {
				if out[i] != data[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.OneGenOf(gen.Const(NoValue), gen.UInt16Range(0, 0x7FFF))),
	))

	properties.TestingRun(t)
}
