package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces per-client request rates and daily quotas using
// fixed minute, hour and calendar-day windows.
type RateLimiter struct {
	mu      sync.Mutex
	limits  RateLimitConfig
	clients map[string]*clientUsage
	now     func() time.Time
}

type clientUsage struct {
	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
	minute      int
	hour        int
	day         int
	dataToday   int64
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsThisMinute int
	RequestsThisHour   int
	RequestsToday      int
	DataToday          int64
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		clients: make(map[string]*clientUsage),
		now:     time.Now,
	}
}

// Allow records a request of dataSize bytes from client, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(client string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u, ok := rl.clients[client]
	if !ok {
		u = &clientUsage{minuteStart: now, hourStart: now, dayStart: now}
		rl.clients[client] = u
	}
	u.roll(now)

	lim := rl.limits
	if lim.RequestsPerMinute > 0 && u.minute >= lim.RequestsPerMinute {
		return &RateLimitError{
			Type:       "minute",
			Limit:      lim.RequestsPerMinute,
			RetryAfter: u.minuteStart.Add(time.Minute).Sub(now),
		}
	}
	if lim.RequestsPerHour > 0 && u.hour >= lim.RequestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      lim.RequestsPerHour,
			RetryAfter: u.hourStart.Add(time.Hour).Sub(now),
		}
	}
	if lim.MaxRequestsPerDay > 0 && u.day >= lim.MaxRequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  int64(lim.MaxRequestsPerDay),
			Used:   int64(u.day),
			Resets: nextMidnight(now),
		}
	}
	if lim.MaxDataPerDay > 0 && u.dataToday+dataSize > lim.MaxDataPerDay {
		return &QuotaExceededError{
			Type:   "data",
			Limit:  lim.MaxDataPerDay,
			Used:   u.dataToday,
			Resets: nextMidnight(now),
		}
	}

	u.minute++
	u.hour++
	u.day++
	u.dataToday += dataSize
	return nil
}

// Usage returns the current counters for client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	u.roll(rl.now())
	return Usage{
		RequestsThisMinute: u.minute,
		RequestsThisHour:   u.hour,
		RequestsToday:      u.day,
		DataToday:          u.dataToday,
	}
}

// roll starts new windows whose period has elapsed.
func (u *clientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minute = 0
		u.minuteStart = now
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hour = 0
		u.hourStart = now
	}
	y1, m1, d1 := now.Date()
	y2, m2, d2 := u.dayStart.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		u.day = 0
		u.dataToday = 0
		u.dayStart = now
	}
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
