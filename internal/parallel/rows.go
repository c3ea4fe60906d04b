// Package parallel runs per-row image passes over a fixed pool of workers.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// chunksPerWorker controls how finely rows are split so slow chunks do not
// leave workers idle at the end of a pass.
const chunksPerWorker = 4

// RowRange is a half-open range of rows [Start, End).
type RowRange struct {
	Start int
	End   int
}

// Workers resolves a configured worker count: values <= 0 mean one worker
// per CPU.
func Workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Split partitions [0, height) into contiguous ranges sized for the given
// number of workers. The ranges are returned in ascending order.
func Split(height, workers int) []RowRange {
	if height <= 0 {
		return nil
	}
	workers = Workers(workers)
	chunks := workers * chunksPerWorker
	if workers == 1 {
		chunks = 1
	}
	size := (height + chunks - 1) / chunks
	if size < 1 {
		size = 1
	}
	ranges := make([]RowRange, 0, (height+size-1)/size)
	for start := 0; start < height; start += size {
		end := min(start+size, height)
		ranges = append(ranges, RowRange{Start: start, End: end})
	}
	return ranges
}

// Rows calls fn for every range returned by Split. With a single worker the
// ranges run sequentially on the calling goroutine. fn must only touch rows
// inside its range. Cancellation is checked between ranges; the context
// error is returned if the pass was cut short.
func Rows(ctx context.Context, height, workers int, fn func(r RowRange)) error {
	ranges := Split(height, workers)
	workers = Workers(workers)

	if workers == 1 || len(ranges) <= 1 {
		for _, r := range ranges {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(r)
		}
		return ctx.Err()
	}

	jobs := make(chan RowRange, len(ranges))
	for _, r := range ranges {
		jobs <- r
	}
	close(jobs)

	var wg sync.WaitGroup
	for range min(workers, len(ranges)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				if ctx.Err() != nil {
					return
				}
				fn(r)
			}
		}()
	}
	wg.Wait()

	return ctx.Err()
}
