package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// ParallelConfig holds configuration for processing several captures at once.
type ParallelConfig struct {
	MaxWorkers       int                         // Number of capture workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback            // Optional progress reporting
	ErrorHandler     func(dir string, err error) // Optional per-capture error handler
}

// DefaultParallelConfig returns defaults for multi-capture processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxWorkers: runtime.NumCPU(),
	}
}

type dirJob struct {
	index int
	dir   string
}

type dirResult struct {
	index  int
	result *Result
	err    error
}

// ProcessDirsParallel processes capture directories on a worker pool.
// Results are returned in input order; a failed capture leaves a nil entry
// and the first failure is returned as the error.
func (p *Pipeline) ProcessDirsParallel(ctx context.Context, dirs []string, config ParallelConfig) ([]*Result, error) {
	if len(dirs) == 0 {
		return nil, errors.New("no capture directories provided")
	}
	if p == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	workers := min(config.MaxWorkers, len(dirs))

	if config.ProgressCallback != nil {
		config.ProgressCallback.OnStart(len(dirs))
		defer config.ProgressCallback.OnComplete()
	}

	jobs := make(chan dirJob, len(dirs))
	results := make(chan dirResult, len(dirs))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go p.dirWorker(ctx, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for i, d := range dirs {
			select {
			case jobs <- dirJob{index: i, dir: d}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*Result, len(dirs))
	errs := make([]error, len(dirs))
	processed := 0
	for r := range results {
		ordered[r.index] = r.result
		errs[r.index] = r.err
		processed++
		if config.ProgressCallback != nil {
			if r.err != nil {
				config.ProgressCallback.OnError(processed, r.err)
			}
			config.ProgressCallback.OnProgress(processed, len(dirs))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstError error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if firstError == nil {
			firstError = fmt.Errorf("capture %s: %w", dirs[i], err)
		}
		if config.ErrorHandler != nil {
			config.ErrorHandler(dirs[i], err)
		}
	}
	return ordered, firstError
}

func (p *Pipeline) dirWorker(ctx context.Context, jobs <-chan dirJob, results chan<- dirResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			res, err := p.ProcessDir(ctx, job.dir)
			select {
			case results <- dirResult{index: job.index, result: res, err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ParallelStats holds statistics about multi-capture throughput.
type ParallelStats struct {
	TotalCaptures     int           `json:"total_captures" yaml:"total_captures"`
	ProcessedCaptures int           `json:"processed_captures" yaml:"processed_captures"`
	FailedCaptures    int           `json:"failed_captures" yaml:"failed_captures"`
	WorkerCount       int           `json:"worker_count" yaml:"worker_count"`
	TotalDuration     time.Duration `json:"total_duration_ns" yaml:"total_duration_ns"`
	AveragePerCapture time.Duration `json:"average_per_capture_ns" yaml:"average_per_capture_ns"`
	ThroughputPerSec  float64       `json:"throughput_per_sec" yaml:"throughput_per_sec"`
}

// CalculateParallelStats derives throughput figures from a finished run.
func CalculateParallelStats(results []*Result, duration time.Duration, workerCount int) ParallelStats {
	stats := ParallelStats{
		TotalCaptures: len(results),
		WorkerCount:   workerCount,
		TotalDuration: duration,
	}
	for _, r := range results {
		if r != nil {
			stats.ProcessedCaptures++
		} else {
			stats.FailedCaptures++
		}
	}
	if stats.ProcessedCaptures > 0 {
		stats.AveragePerCapture = duration / time.Duration(stats.ProcessedCaptures)
		if duration > 0 {
			stats.ThroughputPerSec = float64(stats.ProcessedCaptures) / duration.Seconds()
		}
	}
	return stats
}
