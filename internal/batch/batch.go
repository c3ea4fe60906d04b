// Package batch decodes many capture directories in one run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/slscan/internal/pipeline"
)

// ErrNoCaptures is returned when discovery finds no capture directory.
var ErrNoCaptures = errors.New("no capture directories found")

// ProcessBatch discovers capture directories under args and decodes them
// with the given configuration.
func ProcessBatch(ctx context.Context, args []string, config *Config) (*Result, error) {
	dirs, err := discoverCaptureDirs(args, config.Layout, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover captures: %w", err)
	}
	if len(dirs) == 0 {
		return nil, ErrNoCaptures
	}

	var progress pipeline.ProgressCallback
	if config.ShowProgress && !config.Quiet {
		progress = pipeline.NewConsoleProgressCallback(os.Stderr, "Decoding: ").
			WithUpdateInterval(config.ProgressInterval)
	}

	pl, err := buildPipeline(config, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			slog.Warn("Error closing pipeline", "error", err)
		}
	}()

	start := time.Now()
	results, errs, err := processCaptures(ctx, pl, dirs, config)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	return &Result{
		Results:     results,
		Errors:      errs,
		Dirs:        dirs,
		Duration:    duration,
		WorkerCount: pl.Config().Parallel.MaxWorkers,
	}, nil
}
