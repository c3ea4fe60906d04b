package parallel

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkers(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), Workers(0))
	assert.Equal(t, runtime.NumCPU(), Workers(-3))
	assert.Equal(t, 3, Workers(3))
}

func TestSplit_CoversAllRowsInOrder(t *testing.T) {
	for _, height := range []int{1, 2, 7, 100, 481} {
		for _, workers := range []int{1, 2, 3, 8} {
			ranges := Split(height, workers)
			require.NotEmpty(t, ranges)
			next := 0
			for _, r := range ranges {
				assert.Equal(t, next, r.Start, "height=%d workers=%d", height, workers)
				assert.Greater(t, r.End, r.Start)
				next = r.End
			}
			assert.Equal(t, height, next)
		}
	}
	assert.Empty(t, Split(0, 4))
}

func TestSplit_SingleWorkerIsOneRange(t *testing.T) {
	ranges := Split(480, 1)
	require.Len(t, ranges, 1)
	assert.Equal(t, RowRange{Start: 0, End: 480}, ranges[0])
}

func TestRows_VisitsEveryRowOnce(t *testing.T) {
	const height = 257
	for _, workers := range []int{1, 4, 16} {
		var visits [height]int32
		err := Rows(context.Background(), height, workers, func(r RowRange) {
			for y := r.Start; y < r.End; y++ {
				atomic.AddInt32(&visits[y], 1)
			}
		})
		require.NoError(t, err)
		for y, n := range visits {
			assert.Equal(t, int32(1), n, "row %d visited %d times with %d workers", y, n, workers)
		}
	}
}

func TestRows_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	err := Rows(ctx, 100, 4, func(RowRange) { atomic.AddInt32(&calls, 1) })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
