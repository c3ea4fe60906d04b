// Package common provides shared timing and runtime statistics helpers.
package common

import (
	"fmt"
	"strings"
	"time"
)

// Lap is one named stage measured by a Timer.
type Lap struct {
	Name     string        `json:"name" yaml:"name"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// Timer measures a sequence of named stages plus the total elapsed time.
type Timer struct {
	start    time.Time
	lapStart time.Time
	name     string
	laps     []Lap
	duration time.Duration
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return NewNamedTimer("")
}

// NewNamedTimer creates a new timer with the given name.
func NewNamedTimer(name string) *Timer {
	now := time.Now()
	return &Timer{name: name, start: now, lapStart: now}
}

// Lap closes the current stage under name and starts the next one.
func (t *Timer) Lap(name string) time.Duration {
	now := time.Now()
	d := now.Sub(t.lapStart)
	t.laps = append(t.laps, Lap{Name: name, Duration: d})
	t.lapStart = now
	return d
}

// Laps returns the recorded stages in order.
func (t *Timer) Laps() []Lap {
	return append([]Lap(nil), t.laps...)
}

// LapDuration returns the duration of the named stage, or zero.
func (t *Timer) LapDuration(name string) time.Duration {
	for _, l := range t.laps {
		if l.Name == name {
			return l.Duration
		}
	}
	return 0
}

// Stop stops the timer and returns the total elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// String formats the total and every lap, e.g. "decode: 3ms (bits=2ms fill=1ms)".
func (t *Timer) String() string {
	var b strings.Builder
	if t.name != "" {
		b.WriteString(t.name)
		b.WriteString(": ")
	}
	b.WriteString(t.duration.String())
	if len(t.laps) > 0 {
		parts := make([]string, len(t.laps))
		for i, l := range t.laps {
			parts[i] = fmt.Sprintf("%s=%v", l.Name, l.Duration)
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, " "))
	}
	return b.String()
}
