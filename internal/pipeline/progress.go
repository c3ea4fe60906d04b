package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives progress while several captures are decoded.
type ProgressCallback interface {
	// OnStart is called once with the number of captures queued.
	OnStart(total int)
	// OnProgress is called after each capture finishes.
	OnProgress(current, total int)
	// OnComplete is called once after the last capture.
	OnComplete()
	// OnError is called for each failed capture before its OnProgress.
	OnError(current int, err error)
}

// NoOpProgressCallback discards all progress.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)         {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()         {}
func (NoOpProgressCallback) OnError(int, error)  {}

// ConsoleProgressCallback draws a single-line capture counter with a bar.
type ConsoleProgressCallback struct {
	mu       sync.Mutex
	w        io.Writer
	prefix   string
	width    int
	interval time.Duration
	started  time.Time
	lastDraw time.Time
	failures int
	showRate bool
}

// NewConsoleProgressCallback writes to w, or stderr when w is nil.
func NewConsoleProgressCallback(w io.Writer, prefix string) *ConsoleProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressCallback{
		w:        w,
		prefix:   prefix,
		width:    30,
		interval: 100 * time.Millisecond,
		showRate: true,
	}
}

// WithWidth sets the bar width in cells.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	if width > 0 {
		c.width = width
	}
	return c
}

// WithUpdateInterval sets the minimum time between redraws.
func (c *ConsoleProgressCallback) WithUpdateInterval(d time.Duration) *ConsoleProgressCallback {
	c.interval = d
	return c
}

// WithRate toggles the captures-per-second suffix.
func (c *ConsoleProgressCallback) WithRate(show bool) *ConsoleProgressCallback {
	c.showRate = show
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = time.Now()
	c.lastDraw = time.Time{}
	c.failures = 0
	_, _ = fmt.Fprintf(c.w, "%sdecoding %d captures\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if current < total && now.Sub(c.lastDraw) < c.interval {
		return
	}
	c.lastDraw = now
	_, _ = fmt.Fprint(c.w, c.line(current, total, now))
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Since(c.started).Round(time.Millisecond)
	if c.failures > 0 {
		_, _ = fmt.Fprintf(c.w, "\n%sdone in %v (%d failed)\n", c.prefix, elapsed, c.failures)
		return
	}
	_, _ = fmt.Fprintf(c.w, "\n%sdone in %v\n", c.prefix, elapsed)
}

func (c *ConsoleProgressCallback) OnError(current int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	_, _ = fmt.Fprintf(c.w, "\n%scapture %d failed: %v\n", c.prefix, current, err)
}

func (c *ConsoleProgressCallback) line(current, total int, now time.Time) string {
	if total <= 0 {
		return ""
	}
	filled := c.width * current / total
	var sb strings.Builder
	sb.WriteString("\r")
	sb.WriteString(c.prefix)
	sb.WriteByte('[')
	sb.WriteString(strings.Repeat("#", filled))
	sb.WriteString(strings.Repeat(".", c.width-filled))
	fmt.Fprintf(&sb, "] %d/%d", current, total)
	if elapsed := now.Sub(c.started); c.showRate && elapsed > 0 && current > 0 {
		fmt.Fprintf(&sb, " %.1f/s", float64(current)/elapsed.Seconds())
	}
	return sb.String()
}

// LogProgressCallback reports progress through a slog logger.
type LogProgressCallback struct {
	mu      sync.Mutex
	logger  *slog.Logger
	level   slog.Level
	every   int
	lastLog int
	started time.Time
}

// NewLogProgressCallback logs at level on logger, or the default logger when nil.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, every: 10}
}

// WithInterval logs every n captures; the last capture is always logged.
func (l *LogProgressCallback) WithInterval(n int) *LogProgressCallback {
	if n > 0 {
		l.every = n
	}
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = time.Now()
	l.lastLog = 0
	l.logger.Log(context.Background(), l.level, "Batch decode started", "captures", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current-l.lastLog < l.every && current != total {
		return
	}
	l.lastLog = current
	l.logger.Log(context.Background(), l.level, "Batch decode progress",
		"current", current, "total", total,
		"elapsed", time.Since(l.started).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, "Batch decode finished", "elapsed", time.Since(l.started).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(current int, err error) {
	l.logger.Log(context.Background(), slog.LevelError, "Capture failed", "current", current, "error", err)
}

// MultiProgressCallback fans progress out to several callbacks.
type MultiProgressCallback []ProgressCallback

func (m MultiProgressCallback) OnStart(total int) {
	for _, cb := range m {
		cb.OnStart(total)
	}
}

func (m MultiProgressCallback) OnProgress(current, total int) {
	for _, cb := range m {
		cb.OnProgress(current, total)
	}
}

func (m MultiProgressCallback) OnComplete() {
	for _, cb := range m {
		cb.OnComplete()
	}
}

func (m MultiProgressCallback) OnError(current int, err error) {
	for _, cb := range m {
		cb.OnError(current, err)
	}
}

// ProgressTracker counts finished and failed captures; it is itself a ProgressCallback.
type ProgressTracker struct {
	mu        sync.RWMutex
	started   time.Time
	total     int
	completed int
	failed    int
}

// ProgressSnapshot is a point-in-time copy of a ProgressTracker.
type ProgressSnapshot struct {
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Rate      float64       `json:"rate_per_second"`
}

func (t *ProgressTracker) OnStart(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = time.Now()
	t.total = total
	t.completed = 0
	t.failed = 0
}

func (t *ProgressTracker) OnProgress(current, _ int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = current
}

func (t *ProgressTracker) OnComplete() {}

func (t *ProgressTracker) OnError(int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
}

// Snapshot returns the current counters.
func (t *ProgressTracker) Snapshot() ProgressSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := ProgressSnapshot{Total: t.total, Completed: t.completed, Failed: t.failed}
	if !t.started.IsZero() {
		s.Elapsed = time.Since(t.started)
	}
	if s.Elapsed > 0 && s.Completed > 0 {
		s.Rate = float64(s.Completed) / s.Elapsed.Seconds()
	}
	return s
}

// PercentComplete returns completion in the range [0, 100].
func (t *ProgressTracker) PercentComplete() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.total == 0 {
		return 0
	}
	return float64(t.completed) / float64(t.total) * 100
}
