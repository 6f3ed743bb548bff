package resilience

import (
	"sync"

	"golang.org/x/time/rate"
)

// TokenBucketRegistry hands out a golang.org/x/time/rate limiter per keyed
// service (a carrier, a model provider) for smooth per-second throttling.
// It is separate from the per-campaign 24h daily cap, which the touch
// scheduler enforces by counting sent communications (CountSentSince); no
// dispatch path in the runtime uses this registry.
type TokenBucketRegistry struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewTokenBucketRegistry creates a registry where each key gets its own
// limiter allowing rps requests per second with the given burst.
func NewTokenBucketRegistry(rps float64, burst int) *TokenBucketRegistry {
	return &TokenBucketRegistry{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *TokenBucketRegistry) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.rps, r.burst)
		r.limiters[key] = l
	}
	return l
}

// Allow reports whether a request for key may proceed right now.
func (r *TokenBucketRegistry) Allow(key string) bool {
	return r.get(key).Allow()
}
