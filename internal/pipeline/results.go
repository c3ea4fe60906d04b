package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

var errNilResult = errors.New("nil result")

// ToJSON serializes a single result to indented JSON.
func ToJSON(res *Result) (string, error) {
	if res == nil {
		return "", errNilResult
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONResults serializes several results as a JSON array.
func ToJSONResults(results []*Result) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAML serializes a single result as a YAML document.
func ToYAML(res *Result) (string, error) {
	if res == nil {
		return "", errNilResult
	}
	b, err := yaml.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAMLResults serializes several results as a YAML sequence.
func ToYAMLResults(results []*Result) (string, error) {
	b, err := yaml.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToText renders a human-readable summary with grouped digits.
func ToText(res *Result) (string, error) {
	if res == nil {
		return "", errNilResult
	}
	p := message.NewPrinter(language.English)
	var sb strings.Builder

	if res.Source != "" {
		p.Fprintf(&sb, "Capture:     %s\n", res.Source)
	}
	code := "binary"
	if res.GrayCode {
		code = "gray"
	}
	p.Fprintf(&sb, "Size:        %dx%d, %d patterns (%s)\n", res.Width, res.Height, res.Patterns, code)
	if res.MaskSource != "" {
		p.Fprintf(&sb, "Mask:        %s\n", res.MaskSource)
	}
	total := res.Width * res.Height
	p.Fprintf(&sb, "Valid:       %d of %d pixels\n", res.Decode.ValidPixels, total)
	p.Fprintf(&sb, "Decoded:     %d pixels (%d holes filled)\n", res.Decode.DecodedPixels, res.Decode.HolesFilled)
	if f := res.Fringe; f != nil {
		p.Fprintf(&sb, "Transitions: %d\n", f.Transitions)
		if f.Levels > 0 {
			p.Fprintf(&sb, "Fringes:     %d points on %d levels [%d..%d]\n", f.Points, f.Levels, f.MinLevel, f.MaxLevel)
		} else {
			p.Fprintf(&sb, "Fringes:     none\n")
		}
	}
	p.Fprintf(&sb, "Time:        %v\n", time.Duration(res.Processing.TotalNs).Round(time.Microsecond))
	return sb.String(), nil
}

// ToTextResults joins per-capture summaries with a blank line.
func ToTextResults(results []*Result) (string, error) {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		s, err := ToText(r)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n"), nil
}

// ToCSVPoints exports fringe points as level,x,y rows in level then scan order.
func ToCSVPoints(res *Result) (string, error) {
	if res == nil {
		return "", errNilResult
	}
	if res.Fringes == nil {
		return "", errors.New("result has no fringe data")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"level", "x", "y"})
	for _, level := range res.Fringes.Points.Levels() {
		lv := strconv.Itoa(level)
		for _, pt := range res.Fringes.Points[level] {
			_ = w.Write([]string{
				lv,
				strconv.FormatFloat(pt.X, 'f', -1, 64),
				strconv.FormatFloat(pt.Y, 'f', -1, 64),
			})
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ValidateResult performs simple consistency checks.
func ValidateResult(res *Result) error {
	if res == nil {
		return errNilResult
	}
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid capture size %dx%d", res.Width, res.Height)
	}
	total := res.Width * res.Height
	if res.Decode.ValidPixels > total {
		return fmt.Errorf("valid pixels %d exceed image area %d", res.Decode.ValidPixels, total)
	}
	if res.Decode.DecodedPixels < res.Decode.ValidPixels || res.Decode.DecodedPixels > total {
		return fmt.Errorf("decoded pixels %d out of range [%d, %d]",
			res.Decode.DecodedPixels, res.Decode.ValidPixels, total)
	}
	if res.Codewords != nil {
		b := res.Codewords.Bounds()
		if b.Dx() != res.Width || b.Dy() != res.Height {
			return fmt.Errorf("codeword image %dx%d does not match %dx%d", b.Dx(), b.Dy(), res.Width, res.Height)
		}
	}
	for _, lp := range res.Points {
		for i, pt := range lp.Points {
			if pt.X < 0 || pt.X > float64(res.Width) || pt.Y < 0 || pt.Y >= float64(res.Height) {
				return fmt.Errorf("level %d point %d outside image", lp.Level, i)
			}
		}
	}
	return nil
}
