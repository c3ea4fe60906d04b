// Package fringe locates stripe boundaries in a decoded codeword image.
//
// Every horizontally adjacent pair of valid pixels whose codewords differ is
// a boundary at (x+0.5, y), x being the left pixel. The point is bucketed
// under the lower codeword and, for jumps wider than one level, also under
// the level just below the higher codeword.
package fringe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"time"

	"github.com/MeKo-Tech/slscan/internal/codeword"
	"github.com/MeKo-Tech/slscan/internal/parallel"
)

var (
	ErrNilImage          = errors.New("nil image")
	ErrDimensionMismatch = errors.New("codeword image and mask dimensions differ")
)

// PreconditionError reports invalid inputs detected before extraction.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("fringe %s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// Point is a sub-pixel boundary position.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Map buckets boundary points by codeword level. Points inside a level are
// in row-major scan order.
type Map map[int][]Point

// Append adds p under level.
func (m Map) Append(level int, p Point) {
	m[level] = append(m[level], p)
}

// Levels returns the populated levels in ascending order.
func (m Map) Levels() []int {
	levels := make([]int, 0, len(m))
	for k := range m {
		levels = append(levels, k)
	}
	sort.Ints(levels)
	return levels
}

// Len returns the total number of stored points across all levels.
func (m Map) Len() int {
	n := 0
	for _, pts := range m {
		n += len(pts)
	}
	return n
}

// Options configures extraction.
type Options struct {
	// Workers is the number of row workers (0 = one per CPU, 1 = sequential).
	Workers int
}

// Result holds the extraction output.
type Result struct {
	// Codewords is zero everywhere except at the left pixel of each detected
	// transition, where it repeats the input codeword.
	Codewords *codeword.Image
	Points    Map
	// Transitions counts detected boundaries, independent of how many levels
	// each one was bucketed under.
	Transitions int
	Duration    time.Duration
}

// Extract runs extraction sequentially. See ExtractContext.
func Extract(codes *codeword.Image, mask *image.Gray) (*Result, error) {
	return ExtractContext(context.Background(), codes, mask, Options{Workers: 1})
}

// ExtractContext scans every row of codes for transitions between valid
// pixels. Pairs where either pixel is masked out or unassigned are skipped.
// Rows may be scanned concurrently; points are merged in row order so the
// result does not depend on the worker count.
func ExtractContext(ctx context.Context, codes *codeword.Image, mask *image.Gray, opts Options) (*Result, error) {
	if codes == nil {
		return nil, &PreconditionError{Op: "validate", Err: fmt.Errorf("%w: codeword image", ErrNilImage)}
	}
	if mask == nil {
		return nil, &PreconditionError{Op: "validate", Err: fmt.Errorf("%w: mask", ErrNilImage)}
	}
	width, height := codes.Width(), codes.Height()
	if s := mask.Bounds().Size(); s.X != width || s.Y != height {
		return nil, &PreconditionError{
			Op:  "validate",
			Err: fmt.Errorf("%w: codewords %dx%d, mask %dx%d", ErrDimensionMismatch, width, height, s.X, s.Y),
		}
	}

	start := time.Now()
	out := codeword.NewFilled(width, height, 0)
	rows := make([][]levelPoint, height)

	err := parallel.Rows(ctx, height, opts.Workers, func(r parallel.RowRange) {
		for y := r.Start; y < r.End; y++ {
			rows[y] = scanRow(codes, mask, out, y)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("fringe extraction cancelled: %w", err)
	}

	res := &Result{Codewords: out, Points: make(Map)}
	for _, pts := range rows {
		for _, lp := range pts {
			res.Points.Append(lp.low, lp.p)
			if lp.high-lp.low > 1 {
				res.Points.Append(lp.high-1, lp.p)
			}
		}
		res.Transitions += len(pts)
	}
	res.Duration = time.Since(start)

	slog.Debug("Fringes extracted",
		"width", width, "height", height,
		"transitions", res.Transitions,
		"levels", len(res.Points),
		"points", res.Points.Len(),
		"duration_ms", res.Duration.Milliseconds())

	return res, nil
}

type levelPoint struct {
	low, high int
	p         Point
}

func scanRow(codes *codeword.Image, mask *image.Gray, out *codeword.Image, y int) []levelPoint {
	values, assigned := codes.Row(y)
	outValues, _ := out.Row(y)

	b := mask.Bounds()
	off := mask.PixOffset(b.Min.X, b.Min.Y+y)
	maskRow := mask.Pix[off : off+b.Dx()]

	var pts []levelPoint
	for x := 0; x+1 < len(values); x++ {
		if maskRow[x] == 0 || maskRow[x+1] == 0 {
			continue
		}
		if !assigned[x] || !assigned[x+1] {
			continue
		}
		left, right := values[x], values[x+1]
		if left == right {
			continue
		}

		outValues[x] = left
		low, high := int(min(left, right)), int(max(left, right))
		pts = append(pts, levelPoint{
			low:  low,
			high: high,
			p:    Point{X: float64(x) + 0.5, Y: float64(y)},
		})
	}
	return pts
}
