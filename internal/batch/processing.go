package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/MeKo-Tech/slscan/internal/pipeline"
)

// buildPipeline creates a pipeline from the batch configuration.
func buildPipeline(config *Config, progress pipeline.ProgressCallback) (*pipeline.Pipeline, error) {
	return pipeline.NewBuilder().
		WithGrayCode(config.GrayCode).
		WithRowWorkers(config.RowWorkers).
		WithFringeExtraction(config.ExtractFringe).
		WithPoints(config.IncludePoints).
		WithMaxPatterns(config.MaxPatterns).
		WithLayout(config.Layout).
		WithParallelWorkers(config.Workers).
		WithProgressCallback(progress).
		Build()
}

// processCaptures decodes dirs on the pipeline's worker pool. Per-capture
// failures are collected; unless continueOnError is set the first one
// aborts the batch.
func processCaptures(ctx context.Context, pl *pipeline.Pipeline, dirs []string, config *Config,
) ([]*pipeline.Result, []error, error) {
	failures := make(map[string]error)
	pc := pl.Config().Parallel
	pc.ErrorHandler = func(dir string, err error) {
		slog.Warn("Capture failed", "dir", dir, "error", err)
		failures[dir] = err
	}

	results, err := pl.ProcessDirsParallel(ctx, dirs, pc)
	if err != nil && (results == nil || !config.ContinueOnError) {
		return nil, nil, err
	}

	errs := make([]error, len(dirs))
	for i, dir := range dirs {
		errs[i] = failures[dir]
	}

	if config.DebugDir != "" {
		saveDebugImages(results, dirs, config.DebugDir)
	}
	return results, errs, nil
}

// saveDebugImages writes debug images for each successful capture into a
// numbered subdirectory of debugDir. Failures are logged and skipped.
func saveDebugImages(results []*pipeline.Result, dirs []string, debugDir string) {
	for i, res := range results {
		if res == nil {
			continue
		}
		out := filepath.Join(debugDir, fmt.Sprintf("%03d_%s", i, filepath.Base(dirs[i])))
		if _, err := pipeline.SaveDebugImages(out, res, res.Texture); err != nil {
			slog.Warn("Failed to save debug images", "dir", dirs[i], "error", err)
		}
	}
}
