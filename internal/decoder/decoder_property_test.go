package decoder

import (
	"image"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type stack struct {
	positives []*image.Gray
	inverses  []*image.Gray
	mask      *image.Gray
}

func randomStack(seed int64, w, h, patterns int) stack {
	rng := rand.New(rand.NewSource(seed))
	randomGray := func(maxValue int) *image.Gray {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for i := range img.Pix {
			img.Pix[i] = uint8(rng.Intn(maxValue))
		}
		return img
	}

	s := stack{mask: randomGray(2)}
	for range patterns {
		s.positives = append(s.positives, randomGray(256))
		s.inverses = append(s.inverses, randomGray(256))
	}
	return s
}

func stackGen() gopter.Gen {
	return gopter.CombineGens(
		gen.Int64(),
		gen.IntRange(1, 12),
		gen.IntRange(1, 12),
		gen.IntRange(1, 15),
	).Map(func(v []interface{}) stack {
		return randomStack(v[0].(int64), v[1].(int), v[2].(int), v[3].(int))
	})
}

// TestDecode_MaskingProperties checks which masked pixels can ever carry a value.
func TestDecode_MaskingProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid pixels are always assigned", prop.ForAll(
		func(s stack) bool {
			out, err := Decode(s.positives, s.inverses, s.mask, Options{GrayCode: true, Workers: 1})
			if err != nil {
				return false
			}
			b := s.mask.Bounds()
			for y := 0; y < b.Dy(); y++ {
				for x := 0; x < b.Dx(); x++ {
					if s.mask.GrayAt(x, y).Y != 0 && !out.At(x, y).Assigned {
						return false
					}
				}
			}
			return true
		},
		stackGen(),
	))

	properties.Property("masked pixels only gain a value through an interior equal-flank fill", prop.ForAll(
		func(s stack) bool {
			out, err := Decode(s.positives, s.inverses, s.mask, Options{GrayCode: false, Workers: 1})
			if err != nil {
				return false
			}
			b := s.mask.Bounds()
			w, h := b.Dx(), b.Dy()
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					if s.mask.GrayAt(x, y).Y != 0 || !out.At(x, y).Assigned {
						continue
					}
					if x == 0 || y == 0 || x == w-1 || y == h-1 {
						return false
					}
					if s.mask.GrayAt(x-1, y).Y == 0 || s.mask.GrayAt(x+1, y).Y == 0 {
						return false
					}
					left, right := out.At(x-1, y), out.At(x+1, y)
					if left != right || out.At(x, y) != left {
						return false
					}
				}
			}
			return true
		},
		stackGen(),
	))

	properties.TestingRun(t)
}

// TestDecode_BinaryCodewordRange checks natural-binary output never uses bit 0.
func TestDecode_BinaryCodewordRange(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("bit 0 is reserved and high bits stay clear", prop.ForAll(
		func(s stack) bool {
			out, err := Decode(s.positives, s.inverses, s.mask, Options{GrayCode: false, Workers: 1})
			if err != nil {
				return false
			}
			limit := uint32(1) << (len(s.positives) + 1)
			for _, v := range out.Raw() {
				if v == 0xFFFF {
					continue
				}
				if v&1 != 0 || uint32(v) >= limit {
					return false
				}
			}
			return true
		},
		stackGen(),
	))

	properties.TestingRun(t)
}

// TestDecode_ParallelMatchesSequential checks row-parallel decoding is deterministic.
func TestDecode_ParallelMatchesSequential(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("worker count does not change the result", prop.ForAll(
		func(s stack, gray bool) bool {
			seq, err := Decode(s.positives, s.inverses, s.mask, Options{GrayCode: gray, Workers: 1})
			if err != nil {
				return false
			}
			par, err := Decode(s.positives, s.inverses, s.mask, Options{GrayCode: gray, Workers: 4})
			if err != nil {
				return false
			}
			return seq.Equal(par)
		},
		stackGen(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
