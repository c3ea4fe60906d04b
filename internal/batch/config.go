package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/slscan/internal/capture"
	"github.com/MeKo-Tech/slscan/internal/pipeline"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Decode settings
	GrayCode      bool
	RowWorkers    int
	ExtractFringe bool
	IncludePoints bool
	MaxPatterns   int
	Layout        capture.Layout

	// Output settings
	Format     string
	OutputFile string
	DebugDir   string

	// Parallel processing settings
	Workers         int
	ContinueOnError bool

	// Capture discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ShowStats        bool
	ProgressInterval time.Duration
}

// DefaultConfig returns batch defaults matching the pipeline defaults.
func DefaultConfig() *Config {
	pc := pipeline.DefaultConfig()
	return &Config{
		GrayCode:         pc.Decode.GrayCode,
		RowWorkers:       pc.Decode.Workers,
		ExtractFringe:    pc.ExtractFringe,
		Layout:           pc.Layout,
		Format:           "text",
		Workers:          4,
		ShowProgress:     true,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// Result holds the result of batch processing. Results and Errors are
// aligned with Dirs; a failed capture has a nil result and a non-nil error.
type Result struct {
	Results     []*pipeline.Result
	Errors      []error
	Dirs        []string
	Duration    time.Duration
	WorkerCount int
}

// Failed returns the number of captures that could not be processed.
func (r *Result) Failed() int {
	n := 0
	for _, err := range r.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// FormatResults formats the batch results in the given format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r.Results, r.Errors, r.Dirs, format)
}

// SaveResults writes the formatted results to outputFile, or to w when no
// file is given.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
		return nil
	}
	_, _ = fmt.Fprint(w, output)
	return nil
}

// PrintStats prints processing statistics to w.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	stats := pipeline.CalculateParallelStats(r.Results, r.Duration, r.WorkerCount)
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total captures: %d\n", stats.TotalCaptures)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.ProcessedCaptures)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.FailedCaptures)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per capture: %v\n", stats.AveragePerCapture.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f captures/sec\n", stats.ThroughputPerSec)
}
