package pipeline

import (
	"image"

	"github.com/MeKo-Tech/slscan/internal/codeword"
	"github.com/MeKo-Tech/slscan/internal/decoder"
	"github.com/MeKo-Tech/slscan/internal/fringe"
)

// FringeSummary describes the extracted boundaries.
type FringeSummary struct {
	Transitions int `json:"transitions" yaml:"transitions"`
	Levels      int `json:"levels" yaml:"levels"`
	Points      int `json:"points" yaml:"points"`
	MinLevel    int `json:"min_level" yaml:"min_level"`
	MaxLevel    int `json:"max_level" yaml:"max_level"`
}

// LevelPoints is one fringe level with its boundary points in scan order.
type LevelPoints struct {
	Level  int            `json:"level" yaml:"level"`
	Points []fringe.Point `json:"points" yaml:"points"`
}

// Result is the per-capture output.
type Result struct {
	Source     string         `json:"source,omitempty" yaml:"source,omitempty"`
	Width      int            `json:"width" yaml:"width"`
	Height     int            `json:"height" yaml:"height"`
	Patterns   int            `json:"patterns" yaml:"patterns"`
	GrayCode   bool           `json:"gray_code" yaml:"gray_code"`
	MaskSource string         `json:"mask_source,omitempty" yaml:"mask_source,omitempty"`
	Decode     decoder.Stats  `json:"decode" yaml:"decode"`
	Fringe     *FringeSummary `json:"fringe,omitempty" yaml:"fringe,omitempty"`
	Points     []LevelPoints  `json:"points,omitempty" yaml:"points,omitempty"`
	Processing struct {
		DecodeNs  int64 `json:"decode_ns" yaml:"decode_ns"`
		ExtractNs int64 `json:"extract_ns" yaml:"extract_ns"`
		TotalNs   int64 `json:"total_ns" yaml:"total_ns"`
	} `json:"processing" yaml:"processing"`

	// Codewords is the decoded image; Fringes the extractor output when
	// enabled. Texture is the capture's evenly lit view for overlays.
	Codewords *codeword.Image `json:"-" yaml:"-"`
	Fringes   *fringe.Result  `json:"-" yaml:"-"`
	Texture   *image.Gray     `json:"-" yaml:"-"`
}

func summarize(res *fringe.Result) *FringeSummary {
	s := &FringeSummary{
		Transitions: res.Transitions,
		Levels:      len(res.Points),
		Points:      res.Points.Len(),
	}
	if levels := res.Points.Levels(); len(levels) > 0 {
		s.MinLevel = levels[0]
		s.MaxLevel = levels[len(levels)-1]
	}
	return s
}

func levelPoints(m fringe.Map) []LevelPoints {
	levels := m.Levels()
	out := make([]LevelPoints, 0, len(levels))
	for _, l := range levels {
		out = append(out, LevelPoints{Level: l, Points: m[l]})
	}
	return out
}
