package pipeline

import (
	"sync/atomic"
)

// Profiler aggregates counters and stage timings across processed captures.
type Profiler struct {
	DecodeTimeNs   atomic.Int64
	ExtractTimeNs  atomic.Int64
	Captures       atomic.Int64
	DecodedPixels  atomic.Int64
	HolesFilled    atomic.Int64
	FringePoints   atomic.Int64
	TransitionsSum atomic.Int64
}

// Record adds one processed capture.
func (p *Profiler) Record(res *Result) {
	p.DecodeTimeNs.Add(res.Processing.DecodeNs)
	p.ExtractTimeNs.Add(res.Processing.ExtractNs)
	p.Captures.Add(1)
	p.DecodedPixels.Add(int64(res.Decode.DecodedPixels))
	p.HolesFilled.Add(int64(res.Decode.HolesFilled))
	if res.Fringe != nil {
		p.FringePoints.Add(int64(res.Fringe.Points))
		p.TransitionsSum.Add(int64(res.Fringe.Transitions))
	}
}

// Snapshot returns cumulative metrics in milliseconds for readability.
func (p *Profiler) Snapshot() map[string]any {
	n := p.Captures.Load()
	dec := p.DecodeTimeNs.Load()
	ext := p.ExtractTimeNs.Load()
	out := map[string]any{
		"captures":         n,
		"decoded_pixels":   p.DecodedPixels.Load(),
		"holes_filled":     p.HolesFilled.Load(),
		"fringe_points":    p.FringePoints.Load(),
		"transitions":      p.TransitionsSum.Load(),
		"decode_ms_total":  dec / 1_000_000,
		"extract_ms_total": ext / 1_000_000,
	}
	if n > 0 {
		out["decode_ms_per_capture"] = float64(dec) / 1_000_000.0 / float64(n)
		out["extract_ms_per_capture"] = float64(ext) / 1_000_000.0 / float64(n)
	}
	return out
}
