package tool

import (
	"sync"
	"time"
)

// RateLimiter allows at most limit calls within a sliding window. It is
// used to cap outbound search backend traffic independently of the
// per-client HTTP rate limit.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time
	now    func() time.Time
}

// NewRateLimiter creates a sliding-window limiter of limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window, now: time.Now}
}

// Allow records and permits the call if fewer than limit calls happened
// within the window, otherwise it rejects without recording.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	// calls is ordered; drop the expired prefix.
	start := 0
	for start < len(r.calls) && !r.calls[start].After(cutoff) {
		start++
	}
	if start > 0 {
		r.calls = append(r.calls[:0], r.calls[start:]...)
	}

	if len(r.calls) >= r.limit {
		return false
	}
	r.calls = append(r.calls, now)
	return true
}

// Reset forgets all recorded calls.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = r.calls[:0]
}
