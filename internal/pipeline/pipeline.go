// Package pipeline runs capture sets through decoding and fringe extraction.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/slscan/internal/capture"
	"github.com/MeKo-Tech/slscan/internal/codeword"
	"github.com/MeKo-Tech/slscan/internal/decoder"
	"github.com/MeKo-Tech/slscan/internal/parallel"
	"github.com/MeKo-Tech/slscan/internal/utils"
)

// Config holds configuration for the pipeline and its stages.
type Config struct {
	Decode        decoder.Options
	ExtractFringe bool
	// IncludePoints copies the full fringe point map into results.
	IncludePoints bool
	// MaxPatterns rejects captures with more pattern pairs (0 = codeword limit).
	MaxPatterns int
	Layout      capture.Layout
	Constraints utils.ImageConstraints

	Parallel ParallelConfig
}

// DefaultConfig returns a Gray-code pipeline with fringe extraction enabled.
func DefaultConfig() Config {
	return Config{
		Decode:        decoder.DefaultOptions(),
		ExtractFringe: true,
		Layout:        capture.DefaultLayout(),
		Constraints:   utils.DefaultImageConstraints(),
		Parallel:      DefaultParallelConfig(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg Config
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFromConfig starts a builder from an existing configuration.
func NewBuilderFromConfig(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithGrayCode selects reflected-binary or natural-binary decoding.
func (b *Builder) WithGrayCode(enabled bool) *Builder {
	b.cfg.Decode.GrayCode = enabled
	return b
}

// WithRowWorkers sets the row workers used inside one decode (0 = NumCPU).
func (b *Builder) WithRowWorkers(n int) *Builder {
	b.cfg.Decode.Workers = n
	return b
}

// WithFringeExtraction toggles the fringe stage.
func (b *Builder) WithFringeExtraction(enabled bool) *Builder {
	b.cfg.ExtractFringe = enabled
	return b
}

// WithPoints toggles copying fringe points into results.
func (b *Builder) WithPoints(enabled bool) *Builder {
	b.cfg.IncludePoints = enabled
	return b
}

// WithMaxPatterns caps the number of pattern pairs accepted per capture.
func (b *Builder) WithMaxPatterns(n int) *Builder {
	if n >= 0 {
		b.cfg.MaxPatterns = n
	}
	return b
}

// WithLayout sets the capture file layout.
func (b *Builder) WithLayout(layout capture.Layout) *Builder {
	b.cfg.Layout = layout
	return b
}

// WithConstraints sets capture size limits.
func (b *Builder) WithConstraints(c utils.ImageConstraints) *Builder {
	b.cfg.Constraints = c
	return b
}

// WithParallelWorkers sets how many capture sets are processed at once.
func (b *Builder) WithParallelWorkers(workers int) *Builder {
	if workers >= 0 {
		b.cfg.Parallel.MaxWorkers = workers
	}
	return b
}

// WithProgressCallback sets a progress callback for multi-set processing.
func (b *Builder) WithProgressCallback(callback ProgressCallback) *Builder {
	b.cfg.Parallel.ProgressCallback = callback
	return b
}

// Config returns a copy of the current builder configuration.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration.
func (b *Builder) Validate() error {
	if b.cfg.Decode.Workers < 0 {
		return errors.New("row workers must be >= 0")
	}
	if b.cfg.MaxPatterns > codeword.MaxPatterns {
		return fmt.Errorf("max patterns must be <= %d", codeword.MaxPatterns)
	}
	if err := b.cfg.Layout.Validate(); err != nil {
		return fmt.Errorf("capture layout: %w", err)
	}
	return nil
}

// Pipeline holds the validated configuration and run statistics.
type Pipeline struct {
	cfg      Config
	Profiler *Profiler
}

// Build validates the configuration and returns a Pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: b.cfg, Profiler: &Profiler{}}, nil
}

// Close releases pipeline resources.
func (p *Pipeline) Close() error { return nil }

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]interface{} {
	maxPatterns := p.cfg.MaxPatterns
	if maxPatterns == 0 {
		maxPatterns = codeword.MaxPatterns
	}
	return map[string]interface{}{
		"gray_code":      p.cfg.Decode.GrayCode,
		"row_workers":    parallel.Workers(p.cfg.Decode.Workers),
		"extract_fringe": p.cfg.ExtractFringe,
		"include_points": p.cfg.IncludePoints,
		"max_patterns":   maxPatterns,
		"layout":         p.cfg.Layout,
		"parallel": map[string]interface{}{
			"max_workers":           p.cfg.Parallel.MaxWorkers,
			"has_progress_callback": p.cfg.Parallel.ProgressCallback != nil,
		},
		"stats": p.Profiler.Snapshot(),
	}
}
