package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"gopkg.in/yaml.v3"
)

type captureEntry struct {
	Dir    string           `json:"dir" yaml:"dir"`
	Result *pipeline.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string           `json:"error,omitempty" yaml:"error,omitempty"`
}

type batchDocument struct {
	Captures []captureEntry `json:"captures" yaml:"captures"`
}

// formatBatchResults formats the batch results in the given format.
func formatBatchResults(results []*pipeline.Result, errs []error, dirs []string, format string) (string, error) {
	switch format {
	case "json":
		b, err := json.MarshalIndent(document(results, errs, dirs), "", "  ")
		return string(b), err
	case "yaml":
		b, err := yaml.Marshal(document(results, errs, dirs))
		return string(b), err
	case "csv":
		return formatCSV(results, errs, dirs)
	default: // text
		return formatText(results, errs, dirs)
	}
}

func errorAt(errs []error, i int) error {
	if i < len(errs) {
		return errs[i]
	}
	return nil
}

func document(results []*pipeline.Result, errs []error, dirs []string) batchDocument {
	doc := batchDocument{Captures: make([]captureEntry, len(dirs))}
	for i, dir := range dirs {
		doc.Captures[i] = captureEntry{Dir: dir, Result: results[i]}
		if err := errorAt(errs, i); err != nil {
			doc.Captures[i].Error = err.Error()
		}
	}
	return doc
}

// formatCSV writes one summary row per capture.
func formatCSV(results []*pipeline.Result, errs []error, dirs []string) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	header := []string{
		"dir", "width", "height", "patterns", "gray_code",
		"valid_pixels", "decoded_pixels", "holes_filled",
		"transitions", "levels", "points", "error",
	}
	if err := writer.Write(header); err != nil {
		return "", err
	}

	for i, dir := range dirs {
		row := make([]string, len(header))
		row[0] = dir
		if err := errorAt(errs, i); err != nil {
			row[len(row)-1] = err.Error()
		}
		if res := results[i]; res != nil {
			row[1] = strconv.Itoa(res.Width)
			row[2] = strconv.Itoa(res.Height)
			row[3] = strconv.Itoa(res.Patterns)
			row[4] = strconv.FormatBool(res.GrayCode)
			row[5] = strconv.Itoa(res.Decode.ValidPixels)
			row[6] = strconv.Itoa(res.Decode.DecodedPixels)
			row[7] = strconv.Itoa(res.Decode.HolesFilled)
			if f := res.Fringe; f != nil {
				row[8] = strconv.Itoa(f.Transitions)
				row[9] = strconv.Itoa(f.Levels)
				row[10] = strconv.Itoa(f.Points)
			}
		}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

// formatText joins the per-capture text summaries under a heading each.
func formatText(results []*pipeline.Result, errs []error, dirs []string) (string, error) {
	var output strings.Builder
	for i, dir := range dirs {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", dir)
		if err := errorAt(errs, i); err != nil {
			fmt.Fprintf(&output, "error: %v\n", err)
			continue
		}
		if results[i] == nil {
			continue
		}
		text, err := pipeline.ToText(results[i])
		if err != nil {
			return "", err
		}
		output.WriteString(text)
	}
	return output.String(), nil
}
