package pipeline

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"

	"github.com/MeKo-Tech/slscan/internal/codeword"
	"github.com/MeKo-Tech/slscan/internal/fringe"
	"github.com/MeKo-Tech/slscan/internal/utils"
)

// Debug image file names written by SaveDebugImages.
const (
	CodewordFileName = "codewords.png"
	ColorFileName    = "codewords_color.png"
	OverlayFileName  = "fringes.png"
)

var (
	unassignedColor = color.RGBA{A: 255}
	boundsColor     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// maxCodeword returns the largest assigned codeword, or 0.
func maxCodeword(codes *codeword.Image) int {
	best := 0
	for y := range codes.Height() {
		values, assigned := codes.Row(y)
		for x, ok := range assigned {
			if ok && int(values[x]) > best {
				best = int(values[x])
			}
		}
	}
	return best
}

// RenderCodewords maps each assigned codeword onto a hue ramp; unassigned
// cells are black.
func RenderCodewords(codes *codeword.Image) *image.RGBA {
	if codes == nil {
		return nil
	}
	dst := image.NewRGBA(codes.Bounds())
	maxLevel := maxCodeword(codes)
	for y := range codes.Height() {
		values, assigned := codes.Row(y)
		for x := range values {
			if !assigned[x] {
				dst.SetRGBA(x, y, unassignedColor)
				continue
			}
			dst.SetRGBA(x, y, utils.LevelColor(int(values[x]), maxLevel))
		}
	}
	return dst
}

// RenderFringeOverlay draws fringe points over background, coloured by level.
// Points of one level on adjacent rows are joined so each boundary reads as
// a curve. The bounding box of all points is outlined.
func RenderFringeOverlay(background *image.Gray, points fringe.Map, maxLevel int) *image.RGBA {
	if background == nil {
		return nil
	}
	dst := utils.GrayToRGBA(background)
	if len(points) == 0 {
		return dst
	}
	levels := points.Levels()
	if maxLevel <= 0 {
		maxLevel = levels[len(levels)-1]
	}

	var extent image.Rectangle
	for _, level := range levels {
		col := utils.LevelColor(level, maxLevel)
		pts := points[level]
		for i, p := range pts {
			px := image.Pt(int(p.X), int(p.Y))
			utils.DrawPoint(dst, px.X, px.Y, col, 1)
			extent = extent.Union(image.Rectangle{Min: px, Max: px.Add(image.Pt(1, 1))})
			// Points are in scan order, so the previous point on the row
			// above is the nearest candidate to join.
			for j := i - 1; j >= 0; j-- {
				q := pts[j]
				if q.Y < p.Y-1 {
					break
				}
				if q.Y == p.Y-1 && abs(q.X-p.X) <= 2 {
					utils.DrawLine(dst, image.Pt(int(q.X), int(q.Y)), px, col, 1)
					break
				}
			}
		}
	}
	utils.DrawRect(dst, extent.Inset(-1), boundsColor, 1)
	return dst
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// SaveDebugImages writes the raw 16-bit codeword PNG, a false-colour
// rendering and, when fringes were extracted, an overlay on background.
// It returns the written paths.
func SaveDebugImages(dir string, res *Result, background *image.Gray) ([]string, error) {
	if res == nil || res.Codewords == nil {
		return nil, errors.New("result has no codeword image")
	}
	var written []string
	save := func(name string, img image.Image) error {
		path := filepath.Join(dir, name)
		if err := utils.SaveImage(path, img); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if err := save(CodewordFileName, res.Codewords.ToGray16()); err != nil {
		return written, err
	}
	if err := save(ColorFileName, RenderCodewords(res.Codewords)); err != nil {
		return written, err
	}
	if res.Fringes != nil && background != nil {
		maxLevel := 0
		if res.Fringe != nil {
			maxLevel = res.Fringe.MaxLevel
		}
		if err := save(OverlayFileName, RenderFringeOverlay(background, res.Fringes.Points, maxLevel)); err != nil {
			return written, err
		}
	}
	return written, nil
}
