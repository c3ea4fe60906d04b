// Package decoder turns a stack of binary or Gray-coded stripe captures into
// a codeword image.
//
// Each pattern pair (pattern, inverse) contributes one bit: pattern i maps to
// bit 1<<(i+1), bit 0 is reserved. A pixel's bit is set when the pattern is
// strictly brighter than its inverse. Only pixels inside the validity mask
// are ever written.
package decoder

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/slscan/internal/codeword"
	"github.com/MeKo-Tech/slscan/internal/mempool"
	"github.com/MeKo-Tech/slscan/internal/parallel"
)

// Options configures a decode call.
type Options struct {
	// GrayCode selects reflected-binary interpretation of the stack.
	GrayCode bool
	// Workers is the number of row workers (0 = one per CPU, 1 = sequential).
	Workers int
}

// DefaultOptions returns Gray-code decoding on a single worker.
func DefaultOptions() Options {
	return Options{
		GrayCode: true,
		Workers:  1,
	}
}

// Stats summarises a decode pass.
type Stats struct {
	Width         int           `json:"width" yaml:"width"`
	Height        int           `json:"height" yaml:"height"`
	Patterns      int           `json:"patterns" yaml:"patterns"`
	ValidPixels   int           `json:"valid_pixels" yaml:"valid_pixels"`
	DecodedPixels int           `json:"decoded_pixels" yaml:"decoded_pixels"`
	HolesFilled   int           `json:"holes_filled" yaml:"holes_filled"`
	Duration      time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// Decode decodes the pattern stack. See DecodeContext.
func Decode(positives, inverses []*image.Gray, mask *image.Gray, opts Options) (*codeword.Image, error) {
	img, _, err := DecodeContext(context.Background(), positives, inverses, mask, opts)
	return img, err
}

// DecodeContext validates the inputs, then builds the codeword image row by
// row: bit accumulation, optional Gray to binary conversion and the single
// pixel hole fill. Precondition failures are returned as *PreconditionError
// before any pixel is touched.
func DecodeContext(
	ctx context.Context,
	positives, inverses []*image.Gray,
	mask *image.Gray,
	opts Options,
) (*codeword.Image, Stats, error) {
	size, err := validate(positives, inverses, mask)
	if err != nil {
		return nil, Stats{}, err
	}

	start := time.Now()
	width, height := size.X, size.Y
	slog.Debug("Decoding pattern stack",
		"width", width, "height", height, "patterns", len(positives),
		"gray_code", opts.GrayCode, "workers", parallel.Workers(opts.Workers))

	out := codeword.New(width, height)
	var valid, holes atomic.Int64

	err = parallel.Rows(ctx, height, opts.Workers, func(r parallel.RowRange) {
		var rangeValid, rangeHoles int
		for y := r.Start; y < r.End; y++ {
			rangeValid += accumulateRow(out, y, positives, inverses, mask)
			if opts.GrayCode {
				grayToBinaryRow(out, y)
			}
			if y > 0 && y < height-1 {
				rangeHoles += fillRowHoles(out, y)
			}
		}
		valid.Add(int64(rangeValid))
		holes.Add(int64(rangeHoles))
	})
	if err != nil {
		return nil, Stats{}, fmt.Errorf("decode cancelled: %w", err)
	}

	stats := Stats{
		Width:         width,
		Height:        height,
		Patterns:      len(positives),
		ValidPixels:   int(valid.Load()),
		DecodedPixels: out.AssignedCount(),
		HolesFilled:   int(holes.Load()),
		Duration:      time.Since(start),
	}
	slog.Debug("Pattern stack decoded",
		"valid_pixels", stats.ValidPixels,
		"decoded_pixels", stats.DecodedPixels,
		"holes_filled", stats.HolesFilled,
		"duration_ms", stats.Duration.Milliseconds())

	return out, stats, nil
}

// validate checks every precondition and returns the common image size.
func validate(positives, inverses []*image.Gray, mask *image.Gray) (image.Point, error) {
	fail := func(err error) (image.Point, error) {
		return image.Point{}, &PreconditionError{Op: "validate", Err: err}
	}

	if len(positives) == 0 || len(inverses) == 0 {
		return fail(ErrNoPatterns)
	}
	if len(positives) != len(inverses) {
		return fail(fmt.Errorf("%w: %d patterns, %d inverses", ErrSequenceLength, len(positives), len(inverses)))
	}
	if len(positives) > codeword.MaxPatterns {
		return fail(fmt.Errorf("%w: got %d", ErrTooManyPatterns, len(positives)))
	}
	if mask == nil {
		return fail(fmt.Errorf("%w: mask", ErrNilImage))
	}

	size := mask.Bounds().Size()
	for i := range positives {
		if positives[i] == nil {
			return fail(fmt.Errorf("%w: pattern %d", ErrNilImage, i))
		}
		if inverses[i] == nil {
			return fail(fmt.Errorf("%w: inverse %d", ErrNilImage, i))
		}
		if s := positives[i].Bounds().Size(); s != size {
			return fail(fmt.Errorf("%w: pattern %d is %v, mask is %v", ErrDimensionMismatch, i, s, size))
		}
		if s := inverses[i].Bounds().Size(); s != size {
			return fail(fmt.Errorf("%w: inverse %d is %v, mask is %v", ErrDimensionMismatch, i, s, size))
		}
	}
	return size, nil
}

// grayRow returns the samples of row y relative to the image origin.
func grayRow(img *image.Gray, y int) []uint8 {
	b := img.Bounds()
	off := img.PixOffset(b.Min.X, b.Min.Y+y)
	return img.Pix[off : off+b.Dx()]
}

// accumulateRow assigns every valid pixel of row y and ORs in the bit of
// each pattern pair that is brighter than its inverse. It returns the number
// of valid pixels in the row.
func accumulateRow(out *codeword.Image, y int, positives, inverses []*image.Gray, mask *image.Gray) int {
	values, assigned := out.Row(y)
	maskRow := grayRow(mask, y)

	valid := 0
	for x, m := range maskRow {
		if m != 0 {
			assigned[x] = true
			values[x] = 0
			valid++
		}
	}

	for i := range positives {
		bit := uint16(1) << (i + 1)
		pos := grayRow(positives[i], y)
		inv := grayRow(inverses[i], y)
		for x, m := range maskRow {
			if m != 0 && pos[x] > inv[x] {
				values[x] |= bit
			}
		}
	}
	return valid
}

// grayToBinaryRow converts every assigned cell of row y from reflected
// binary to natural binary.
func grayToBinaryRow(out *codeword.Image, y int) {
	values, assigned := out.Row(y)
	for x := range values {
		if assigned[x] {
			values[x] = codeword.GrayToBinary(values[x])
		}
	}
}

// fillRowHoles assigns an unassigned interior pixel the value of its left
// and right neighbours when both are assigned and equal. Neighbours are read
// from a snapshot of the row taken before any fill, so a filled hole never
// feeds another. Returns the number of filled pixels.
func fillRowHoles(out *codeword.Image, y int) int {
	values, assigned := out.Row(y)
	width := len(values)
	if width < 3 {
		return 0
	}

	snapValues := mempool.GetUint16(width)
	snapAssigned := mempool.GetBool(width)
	defer mempool.PutUint16(snapValues)
	defer mempool.PutBool(snapAssigned)
	copy(snapValues, values)
	copy(snapAssigned, assigned)

	filled := 0
	for x := 1; x < width-1; x++ {
		if snapAssigned[x] {
			continue
		}
		if snapAssigned[x-1] && snapAssigned[x+1] && snapValues[x-1] == snapValues[x+1] {
			values[x] = snapValues[x-1]
			assigned[x] = true
			filled++
		}
	}
	return filled
}
