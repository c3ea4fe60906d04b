package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/slscan/internal/capture"
	"github.com/MeKo-Tech/slscan/internal/common"
	"github.com/MeKo-Tech/slscan/internal/decoder"
	"github.com/MeKo-Tech/slscan/internal/fringe"
	"github.com/MeKo-Tech/slscan/internal/utils"
)

// ErrTooManyPatterns is returned when a capture exceeds Config.MaxPatterns.
var ErrTooManyPatterns = errors.New("capture has more pattern pairs than allowed")

// Process decodes a capture set and, when enabled, extracts its fringes.
func (p *Pipeline) Process(set *capture.Set) (*Result, error) {
	return p.ProcessContext(context.Background(), set)
}

// ProcessContext is like Process but allows cancellation via context.
func (p *Pipeline) ProcessContext(ctx context.Context, set *capture.Set) (*Result, error) {
	if p == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if set == nil {
		return nil, errors.New("capture set is nil")
	}
	if p.cfg.MaxPatterns > 0 && set.Patterns() > p.cfg.MaxPatterns {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyPatterns, set.Patterns(), p.cfg.MaxPatterns)
	}
	if err := utils.ValidateImageConstraints(set.Mask, p.cfg.Constraints); err != nil {
		return nil, err
	}

	slog.Debug("Starting capture processing",
		"source", set.Dir, "width", set.Width(), "height", set.Height(), "patterns", set.Patterns())
	timer := common.NewNamedTimer("process")

	codes, stats, err := decoder.DecodeContext(ctx, set.Positives, set.Inverses, set.Mask, p.cfg.Decode)
	if err != nil {
		return nil, err
	}
	decodeDur := timer.Lap("decode")

	res := &Result{
		Source:     set.Dir,
		Width:      set.Width(),
		Height:     set.Height(),
		Patterns:   set.Patterns(),
		GrayCode:   p.cfg.Decode.GrayCode,
		MaskSource: set.MaskSource,
		Decode:     stats,
		Codewords:  codes,
		Texture:    set.Texture(),
	}
	res.Processing.DecodeNs = decodeDur.Nanoseconds()

	if p.cfg.ExtractFringe {
		fr, err := fringe.ExtractContext(ctx, codes, set.Mask, fringe.Options{Workers: p.cfg.Decode.Workers})
		if err != nil {
			return nil, err
		}
		res.Processing.ExtractNs = timer.Lap("extract").Nanoseconds()
		res.Fringes = fr
		res.Fringe = summarize(fr)
		if p.cfg.IncludePoints {
			res.Points = levelPoints(fr.Points)
		}
	}

	res.Processing.TotalNs = timer.Stop().Nanoseconds()
	p.Profiler.Record(res)

	slog.Debug("Capture processed", "source", set.Dir, "timing", timer.String())
	return res, nil
}

// ProcessDir loads the capture in dir and processes it.
func (p *Pipeline) ProcessDir(ctx context.Context, dir string) (*Result, error) {
	set, err := capture.Load(dir, p.cfg.Layout)
	if err != nil {
		return nil, err
	}
	return p.ProcessContext(ctx, set)
}

// ProcessImages processes in-memory pattern images. A nil mask is replaced
// according to the configured layout's contrast threshold.
func (p *Pipeline) ProcessImages(ctx context.Context, positives, inverses []*image.Gray, mask *image.Gray) (*Result, error) {
	set, err := capture.NewSet(positives, inverses, mask, p.cfg.Layout.MinContrast)
	if err != nil {
		return nil, err
	}
	return p.ProcessContext(ctx, set)
}
