package resilience

import (
	"sync"
	"time"
)

// SlidingWindowLimiter tracks timestamps of allowed calls per key and rejects
// new calls once the count within the window is exceeded. Generalizes
// adapter/tool/ratelimit.go's single-key RateLimiter to the multi-tenant,
// multi-channel backpressure the engagement pipeline needs (per-lead,
// per-carrier, per-provider).
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  map[string][]time.Time
	now    func() time.Time
}

// NewSlidingWindowLimiter creates a limiter that allows limit calls per
// window, per key.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		limit:  limit,
		window: window,
		calls:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether a call for key is permitted under the limit, and
// records it if so.
func (l *SlidingWindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	calls := l.calls[key]
	n := 0
	for _, t := range calls {
		if t.After(cutoff) {
			calls[n] = t
			n++
		}
	}
	calls = calls[:n]

	if len(calls) >= l.limit {
		l.calls[key] = calls
		return false
	}

	l.calls[key] = append(calls, now)
	return true
}

// Reset clears all recorded calls for key.
func (l *SlidingWindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.calls, key)
}
