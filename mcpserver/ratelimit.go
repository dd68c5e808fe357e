package mcpserver

import (
	"sync"
	"time"
)

// RateLimiter counts tool calls per key in fixed windows
type RateLimiter struct {
	counters     map[string]*rateLimitEntry
	mu           sync.Mutex
	maxRequests  int           // per window
	windowPeriod time.Duration
	now          func() time.Time
}

type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows maxRequests calls per key in each window.
// maxRequests <= 0 disables limiting.
func NewRateLimiter(maxRequests int, windowPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		counters:     make(map[string]*rateLimitEntry),
		maxRequests:  maxRequests,
		windowPeriod: windowPeriod,
		now:          time.Now,
	}
}

// Allow records one call for key. It reports whether the call is within
// the limit and when the current window resets.
func (r *RateLimiter) Allow(key string) (bool, time.Time) {
	if r == nil || r.maxRequests <= 0 {
		return true, time.Time{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.counters[key]
	if !ok || now.Sub(entry.windowStart) >= r.windowPeriod {
		r.counters[key] = &rateLimitEntry{count: 1, windowStart: now}
		return true, now.Add(r.windowPeriod)
	}

	entry.count++
	return entry.count <= r.maxRequests, entry.windowStart.Add(r.windowPeriod)
}
