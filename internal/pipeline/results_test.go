package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/MeKo-Tech/slscan/internal/codeword"
	"github.com/MeKo-Tech/slscan/internal/fringe"
	"github.com/MeKo-Tech/slscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// sampleResult builds the result of the 1x4 row [2,0,2,0] by hand.
func sampleResult() *Result {
	points := fringe.Map{
		0: {{X: 0.5, Y: 0}, {X: 1.5, Y: 0}, {X: 2.5, Y: 0}},
		1: {{X: 0.5, Y: 0}, {X: 1.5, Y: 0}, {X: 2.5, Y: 0}},
	}
	codes, _ := codeword.FromRaw(4, 1, []uint16{2, 0, 2, 0})
	res := &Result{
		Source:     "captures/scan_01",
		Width:      4,
		Height:     1,
		Patterns:   1,
		MaskSource: "file",
		Codewords:  codes,
		Fringes:    &fringe.Result{Points: points, Transitions: 3},
	}
	res.Decode.ValidPixels = 4
	res.Decode.DecodedPixels = 4
	res.Fringe = summarize(res.Fringes)
	res.Points = levelPoints(points)
	res.Processing.TotalNs = 1500
	return res
}

func TestToJSON(t *testing.T) {
	s, err := ToJSON(sampleResult())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	assert.Equal(t, "captures/scan_01", decoded["source"])
	assert.NotContains(t, decoded, "Codewords")
	fr, ok := decoded["fringe"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, fr["transitions"])
	assert.EqualValues(t, 6, fr["points"])

	_, err = ToJSON(nil)
	assert.Error(t, err)
}

func TestToJSONResults(t *testing.T) {
	s, err := ToJSONResults([]*Result{sampleResult(), sampleResult()})
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	assert.Len(t, decoded, 2)
}

func TestToYAML(t *testing.T) {
	s, err := ToYAML(sampleResult())
	require.NoError(t, err)

	var decoded struct {
		Source string `yaml:"source"`
		Fringe struct {
			Levels   int `yaml:"levels"`
			MaxLevel int `yaml:"max_level"`
		} `yaml:"fringe"`
		Points []struct {
			Level  int            `yaml:"level"`
			Points []fringe.Point `yaml:"points"`
		} `yaml:"points"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(s), &decoded))
	assert.Equal(t, "captures/scan_01", decoded.Source)
	assert.Equal(t, 2, decoded.Fringe.Levels)
	assert.Equal(t, 1, decoded.Fringe.MaxLevel)
	require.Len(t, decoded.Points, 2)
	assert.Equal(t, fringe.Point{X: 1.5, Y: 0}, decoded.Points[1].Points[1])

	multi, err := ToYAMLResults([]*Result{sampleResult()})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(multi, "- "))
}

func TestToText(t *testing.T) {
	res := sampleResult()
	res.Width, res.Height = 1200, 1000
	res.Decode.ValidPixels = 1_000_000
	res.Decode.DecodedPixels = 1_000_500
	res.Decode.HolesFilled = 500

	s, err := ToText(res)
	require.NoError(t, err)
	assert.Contains(t, s, "captures/scan_01")
	assert.Contains(t, s, "1,200x1,000")
	assert.Contains(t, s, "1,000,000 of 1,200,000 pixels")
	assert.Contains(t, s, "(500 holes filled)")
	assert.Contains(t, s, "6 points on 2 levels [0..1]")
	assert.Contains(t, s, "(binary)")

	res.Fringe = &FringeSummary{}
	s, err = ToText(res)
	require.NoError(t, err)
	assert.Contains(t, s, "Fringes:     none")

	joined, err := ToTextResults([]*Result{sampleResult(), nil, sampleResult()})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(joined, "Capture:"))
}

func TestToCSVPoints(t *testing.T) {
	s, err := ToCSVPoints(sampleResult())
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 7)
	assert.Equal(t, []string{"level", "x", "y"}, rows[0])
	assert.Equal(t, []string{"0", "0.5", "0"}, rows[1])
	assert.Equal(t, []string{"1", "2.5", "0"}, rows[6])

	res := sampleResult()
	res.Fringes = nil
	_, err = ToCSVPoints(res)
	assert.Error(t, err)
}

func TestValidateResult(t *testing.T) {
	require.NoError(t, ValidateResult(sampleResult()))

	tests := []struct {
		name   string
		mutate func(*Result)
	}{
		{"zero size", func(r *Result) { r.Width = 0 }},
		{"valid exceeds area", func(r *Result) { r.Decode.ValidPixels = 5 }},
		{"decoded below valid", func(r *Result) { r.Decode.DecodedPixels = 3 }},
		{"codeword size", func(r *Result) { r.Codewords = codeword.New(2, 2) }},
		{"point outside", func(r *Result) { r.Points[0].Points[0].Y = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := sampleResult()
			tt.mutate(res)
			assert.Error(t, ValidateResult(res))
		})
	}
	assert.Error(t, ValidateResult(nil))
}

func TestFormattersOnProcessedCapture(t *testing.T) {
	c := generate(t, func(cfg *testutil.CaptureConfig) { cfg.Bits = 3 })
	p := buildPipeline(t, NewBuilder().WithPoints(true))
	res, err := p.Process(captureSet(t, c))
	require.NoError(t, err)

	s, err := ToCSVPoints(res)
	require.NoError(t, err)
	assert.Equal(t, res.Fringe.Points+1, strings.Count(s, "\n"))

	_, err = ToYAML(res)
	require.NoError(t, err)
	_, err = ToText(res)
	require.NoError(t, err)
}
