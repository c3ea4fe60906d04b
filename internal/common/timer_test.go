package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	timer := NewNamedTimer("test_timer")
	assert.Equal(t, "test_timer", timer.Name())

	time.Sleep(10 * time.Millisecond)

	duration := timer.Stop()
	assert.GreaterOrEqual(t, duration, 10*time.Millisecond)
	assert.Equal(t, duration, timer.Duration())

	str := timer.String()
	assert.Contains(t, str, "test_timer")
	assert.Contains(t, str, "ms")
}

func TestTimer_Laps(t *testing.T) {
	timer := NewTimer()
	time.Sleep(2 * time.Millisecond)
	first := timer.Lap("decode")
	time.Sleep(2 * time.Millisecond)
	timer.Lap("extract")
	total := timer.Stop()

	laps := timer.Laps()
	require.Len(t, laps, 2)
	assert.Equal(t, "decode", laps[0].Name)
	assert.Equal(t, "extract", laps[1].Name)
	assert.Equal(t, first, timer.LapDuration("decode"))
	assert.Zero(t, timer.LapDuration("missing"))
	assert.GreaterOrEqual(t, total, laps[0].Duration+laps[1].Duration)
	assert.Contains(t, timer.String(), "decode=")

	// Returned laps are a copy.
	laps[0].Name = "changed"
	assert.Equal(t, "decode", timer.Laps()[0].Name)
}
