// Package capture loads structured-light capture sets from disk.
//
// A capture directory holds the positive stripe patterns, their photometric
// inverses and optionally a validity mask. Files are matched with glob
// patterns and ordered by the first number in their name, so pattern_2.png
// sorts before pattern_10.png.
package capture

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/MeKo-Tech/slscan/internal/utils"
)

var (
	ErrNoPatternFiles = errors.New("no pattern files found")
	ErrFileCount      = errors.New("pattern and inverse file counts differ")
	ErrSize           = errors.New("capture images differ in size")
)

// Mask sources reported in Set.MaskSource.
const (
	MaskFromFile     = "file"
	MaskFromContrast = "contrast"
	MaskFull         = "full"
)

// Layout names the files of a capture directory.
type Layout struct {
	PositivePattern string `mapstructure:"positive_pattern" yaml:"positive_pattern" json:"positive_pattern"`
	InversePattern  string `mapstructure:"inverse_pattern" yaml:"inverse_pattern" json:"inverse_pattern"`
	MaskFile        string `mapstructure:"mask_file" yaml:"mask_file" json:"mask_file"`
	// MinContrast derives a mask from the mean |pattern-inverse| difference
	// when no mask file exists. Zero marks every pixel valid.
	MinContrast uint8 `mapstructure:"min_contrast" yaml:"min_contrast" json:"min_contrast"`
}

// DefaultLayout returns the file naming used by the generator and the CLI.
func DefaultLayout() Layout {
	return Layout{
		PositivePattern: "pattern_*.png",
		InversePattern:  "inverse_*.png",
		MaskFile:        "mask.png",
	}
}

// Validate checks the glob patterns.
func (l Layout) Validate() error {
	if l.PositivePattern == "" || l.InversePattern == "" {
		return errors.New("positive and inverse patterns are required")
	}
	for _, p := range []string{l.PositivePattern, l.InversePattern} {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("invalid glob %q: %w", p, err)
		}
	}
	if l.PositivePattern == l.InversePattern {
		return errors.New("positive and inverse patterns must differ")
	}
	return nil
}

// Set is a loaded capture ready for decoding.
type Set struct {
	Dir           string
	Positives     []*image.Gray
	Inverses      []*image.Gray
	Mask          *image.Gray
	MaskSource    string
	PositiveFiles []string
	InverseFiles  []string
}

// Width returns the capture width.
func (s *Set) Width() int { return s.Mask.Bounds().Dx() }

// Height returns the capture height.
func (s *Set) Height() int { return s.Mask.Bounds().Dy() }

// Patterns returns the number of pattern pairs.
func (s *Set) Patterns() int { return len(s.Positives) }

// Texture returns the per-pixel mean of the first pattern and its inverse,
// an evenly lit view of the scene usable as a debug background.
func (s *Set) Texture() *image.Gray {
	pos, inv := s.Positives[0], s.Inverses[0]
	pb, ib := pos.Bounds(), inv.Bounds()
	w, h := pb.Dx(), pb.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			p := uint16(pos.GrayAt(pb.Min.X+x, pb.Min.Y+y).Y)
			n := uint16(inv.GrayAt(ib.Min.X+x, ib.Min.Y+y).Y)
			out.Pix[y*out.Stride+x] = uint8((p + n) / 2) //nolint:gosec // G115: mean of two bytes
		}
	}
	return out
}

// NewSet assembles a set from in-memory images. A nil mask is replaced by a
// contrast mask (minContrast > 0) or an all-valid mask.
func NewSet(positives, inverses []*image.Gray, mask *image.Gray, minContrast uint8) (*Set, error) {
	if len(positives) == 0 {
		return nil, ErrNoPatternFiles
	}
	if len(positives) != len(inverses) {
		return nil, fmt.Errorf("%w: %d patterns, %d inverses", ErrFileCount, len(positives), len(inverses))
	}
	all := make([]image.Image, 0, 2*len(positives)+1)
	for i := range positives {
		all = append(all, positives[i], inverses[i])
	}
	if mask != nil {
		all = append(all, mask)
	}
	if !utils.SameSize(all...) {
		return nil, ErrSize
	}

	s := &Set{Positives: positives, Inverses: inverses, Mask: mask, MaskSource: MaskFromFile}
	switch {
	case mask != nil:
	case minContrast > 0:
		s.Mask = ContrastMask(positives, inverses, minContrast)
		s.MaskSource = MaskFromContrast
	default:
		s.Mask = FullMask(positives[0].Bounds().Dx(), positives[0].Bounds().Dy())
		s.MaskSource = MaskFull
	}
	return s, nil
}

// Load reads the capture in dir.
func Load(dir string, layout Layout) (*Set, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	posFiles, err := matchSorted(dir, layout.PositivePattern)
	if err != nil {
		return nil, err
	}
	invFiles, err := matchSorted(dir, layout.InversePattern)
	if err != nil {
		return nil, err
	}
	if len(posFiles) == 0 {
		return nil, fmt.Errorf("%w in %s (pattern %q)", ErrNoPatternFiles, dir, layout.PositivePattern)
	}
	if len(posFiles) != len(invFiles) {
		return nil, fmt.Errorf("%w in %s: %d patterns, %d inverses", ErrFileCount, dir, len(posFiles), len(invFiles))
	}

	positives, err := loadAll(posFiles)
	if err != nil {
		return nil, err
	}
	inverses, err := loadAll(invFiles)
	if err != nil {
		return nil, err
	}

	var mask *image.Gray
	if layout.MaskFile != "" {
		maskPath := filepath.Join(dir, layout.MaskFile)
		if _, statErr := os.Stat(maskPath); statErr == nil {
			mask, _, err = utils.LoadGray(maskPath)
			if err != nil {
				return nil, err
			}
		}
	}

	set, err := NewSet(positives, inverses, mask, layout.MinContrast)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", dir, err)
	}
	set.Dir = dir
	set.PositiveFiles = posFiles
	set.InverseFiles = invFiles

	slog.Debug("Capture loaded",
		"dir", dir, "patterns", set.Patterns(),
		"width", set.Width(), "height", set.Height(),
		"mask", set.MaskSource)
	return set, nil
}

// IsCaptureDir reports whether dir holds at least one positive pattern file.
func IsCaptureDir(dir string, layout Layout) bool {
	files, err := filepath.Glob(filepath.Join(dir, layout.PositivePattern))
	return err == nil && len(files) > 0
}

func loadAll(paths []string) ([]*image.Gray, error) {
	out := make([]*image.Gray, 0, len(paths))
	for _, r := range utils.BatchLoadGray(paths) {
		if r.Err != nil {
			return nil, r.Err
		}
		out = append(out, r.Img)
	}
	return out, nil
}

var indexRe = regexp.MustCompile(`\d+`)

func matchSorted(dir, pattern string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	SortNatural(files)
	return files, nil
}

// SortNatural orders paths by the first integer in their base name, falling
// back to lexical order for ties and names without digits.
func SortNatural(paths []string) {
	index := func(p string) int {
		m := indexRe.FindString(filepath.Base(p))
		if m == "" {
			return -1
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return -1
		}
		return n
	}
	slices.SortStableFunc(paths, func(a, b string) int {
		if c := cmp.Compare(index(a), index(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
}

// FullMask returns a w×h mask marking every pixel valid.
func FullMask(w, h int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for i := range m.Pix {
		m.Pix[i] = 255
	}
	return m
}

// ContrastMask marks a pixel valid when the mean absolute difference between
// each pattern and its inverse reaches minContrast.
func ContrastMask(positives, inverses []*image.Gray, minContrast uint8) *image.Gray {
	b := positives[0].Bounds()
	w, h := b.Dx(), b.Dy()
	sum := make([]int, w*h)
	for i := range positives {
		pb, ib := positives[i].Bounds(), inverses[i].Bounds()
		for y := range h {
			for x := range w {
				p := int(positives[i].GrayAt(pb.Min.X+x, pb.Min.Y+y).Y)
				n := int(inverses[i].GrayAt(ib.Min.X+x, ib.Min.Y+y).Y)
				d := p - n
				if d < 0 {
					d = -d
				}
				sum[y*w+x] += d
			}
		}
	}

	mask := image.NewGray(image.Rect(0, 0, w, h))
	threshold := int(minContrast) * len(positives)
	for i, s := range sum {
		if s >= threshold {
			mask.Pix[i] = 255
		}
	}
	return mask
}
