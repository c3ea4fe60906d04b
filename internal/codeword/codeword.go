// Package codeword holds the per-pixel stripe index image produced by the
// bit-plane decoder and consumed by the fringe extractor.
//
// Every pixel is a two-state cell: either unassigned ("no data") or carrying
// a 16-bit codeword. The flat sentinel representation expected by external
// collaborators is only produced at the boundary (Raw, ToGray16).
package codeword

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

const (
	// NoValue is the reserved sentinel used in flat codeword buffers for
	// pixels that carry no decoded value.
	NoValue uint16 = 0xFFFF

	// MaxPatterns is the largest number of pattern pairs whose bits fit the
	// 16-bit storage once bit 0 is reserved.
	MaxPatterns = 15
)

// Cell is a single pixel of a codeword image.
type Cell struct {
	Value    uint16
	Assigned bool
}

// Unassigned returns the empty cell.
func Unassigned() Cell { return Cell{} }

// ValueCell returns an assigned cell holding v.
func ValueCell(v uint16) Cell { return Cell{Value: v, Assigned: true} }

// Raw returns the flat representation of the cell.
func (c Cell) Raw() uint16 {
	if !c.Assigned {
		return NoValue
	}
	return c.Value
}

func (c Cell) String() string {
	if !c.Assigned {
		return "-"
	}
	return fmt.Sprintf("%d", c.Value)
}

// Image is a row-major grid of cells.
type Image struct {
	width    int
	height   int
	values   []uint16
	assigned []bool
}

// New allocates an image of the given size with every cell unassigned.
func New(width, height int) *Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Image{
		width:    width,
		height:   height,
		values:   make([]uint16, width*height),
		assigned: make([]bool, width*height),
	}
}

// NewFilled allocates an image with every cell assigned to v.
func NewFilled(width, height int, v uint16) *Image {
	m := New(width, height)
	for i := range m.values {
		m.values[i] = v
		m.assigned[i] = true
	}
	return m
}

// Width returns the image width in pixels.
func (m *Image) Width() int { return m.width }

// Height returns the image height in pixels.
func (m *Image) Height() int { return m.height }

// Bounds returns the image extent anchored at the origin.
func (m *Image) Bounds() image.Rectangle { return image.Rect(0, 0, m.width, m.height) }

func (m *Image) inside(x, y int) bool {
	return x >= 0 && x < m.width && y >= 0 && y < m.height
}

// At returns the cell at (x, y). Coordinates outside the image read as
// unassigned.
func (m *Image) At(x, y int) Cell {
	if !m.inside(x, y) {
		return Cell{}
	}
	i := y*m.width + x
	return Cell{Value: m.values[i], Assigned: m.assigned[i]}
}

// Set assigns v to the cell at (x, y).
func (m *Image) Set(x, y int, v uint16) {
	if !m.inside(x, y) {
		return
	}
	i := y*m.width + x
	m.values[i] = v
	m.assigned[i] = true
}

// Unset clears the cell at (x, y).
func (m *Image) Unset(x, y int) {
	if !m.inside(x, y) {
		return
	}
	i := y*m.width + x
	m.values[i] = 0
	m.assigned[i] = false
}

// Row exposes the backing storage of row y. The slices alias the image;
// writes through them are visible to the image. An unassigned cell must
// keep assigned[x] == false.
func (m *Image) Row(y int) (values []uint16, assigned []bool) {
	if y < 0 || y >= m.height {
		return nil, nil
	}
	start := y * m.width
	end := start + m.width
	return m.values[start:end:end], m.assigned[start:end:end]
}

// AssignedCount returns the number of assigned cells.
func (m *Image) AssignedCount() int {
	n := 0
	for _, a := range m.assigned {
		if a {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	c := &Image{
		width:    m.width,
		height:   m.height,
		values:   make([]uint16, len(m.values)),
		assigned: make([]bool, len(m.assigned)),
	}
	copy(c.values, m.values)
	copy(c.assigned, m.assigned)
	return c
}

// Equal reports whether both images have the same size and cells.
func (m *Image) Equal(o *Image) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.width != o.width || m.height != o.height {
		return false
	}
	for i := range m.values {
		if m.assigned[i] != o.assigned[i] {
			return false
		}
		if m.assigned[i] && m.values[i] != o.values[i] {
			return false
		}
	}
	return true
}

// Raw returns a flat row-major copy where unassigned cells hold NoValue.
func (m *Image) Raw() []uint16 {
	out := make([]uint16, len(m.values))
	for i, v := range m.values {
		if m.assigned[i] {
			out[i] = v
		} else {
			out[i] = NoValue
		}
	}
	return out
}

// ErrBufferSize is returned when a flat buffer does not match the requested
// dimensions.
var ErrBufferSize = errors.New("codeword: buffer size does not match dimensions")

// FromRaw builds an image from a flat row-major buffer. NoValue entries
// become unassigned cells.
func FromRaw(width, height int, data []uint16) (*Image, error) {
	if width < 0 || height < 0 || len(data) != width*height {
		return nil, fmt.Errorf("%w: %dx%d with %d samples", ErrBufferSize, width, height, len(data))
	}
	m := New(width, height)
	for i, v := range data {
		if v == NoValue {
			continue
		}
		m.values[i] = v
		m.assigned[i] = true
	}
	return m, nil
}

// ToGray16 renders the image as a 16-bit grayscale raster carrying the raw
// codewords, with NoValue for unassigned cells.
func (m *Image) ToGray16() *image.Gray16 {
	out := image.NewGray16(m.Bounds())
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			out.SetGray16(x, y, color.Gray16{Y: m.At(x, y).Raw()})
		}
	}
	return out
}

// FromGray16 is the inverse of ToGray16. The raster origin is normalised
// to (0, 0).
func FromGray16(img *image.Gray16) *Image {
	b := img.Bounds()
	m := New(b.Dx(), b.Dy())
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			v := img.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			if v != NoValue {
				m.Set(x, y, v)
			}
		}
	}
	return m
}
