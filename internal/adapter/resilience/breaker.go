// Package resilience generalizes the per-provider circuit breaker and
// rate-limiter patterns the teacher scopes to LLM providers into named
// registries any outbound call (model, carrier, store) can share.
package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"alfred-ai/internal/domain"
)

// BreakerConfig mirrors internal/infra/config.BreakerConfig's fields so the
// registry can be constructed directly from loaded config.
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

// BreakerRegistry holds one gobreaker instance per named service (a model
// provider, a carrier, the store), matching the shape of
// adapter/llm/circuitbreaker.go's CircuitBreakerProvider but keyed generically
// instead of being wired one-to-one into domain.LLMProvider.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	logger   *slog.Logger
	breakers map[string]*gobreaker.CircuitBreaker[any]
	persist  domain.CircuitBreakerStateStore
}

// NewBreakerRegistry creates a registry. persist may be nil. When it is set,
// each state transition is saved to it; saved state is never loaded, so every
// new registry starts with closed breakers either way.
func NewBreakerRegistry(cfg BreakerConfig, logger *slog.Logger, persist domain.CircuitBreakerStateStore) *BreakerRegistry {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	return &BreakerRegistry{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		persist:  persist,
	}
}

func (r *BreakerRegistry) get(service string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[service]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Interval:    r.cfg.Interval,
		Timeout:     r.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change",
				"service", name, "from", from.String(), "to", to.String())
			if r.persist != nil {
				snap := domain.BreakerSnapshot{
					Service: name,
					State:   to.String(),
				}
				_ = r.persist.Save(context.Background(), name, snap)
			}
		},
		IsSuccessful: func(err error) bool { return err == nil },
	})
	r.breakers[service] = cb
	return cb
}

// Execute runs fn through the named service's breaker. A gobreaker-open
// result is surfaced as domain.ErrBreakerOpen so callers can branch on the
// engagement-runtime error taxonomy (spec.md §7) without importing gobreaker.
func (r *BreakerRegistry) Execute(ctx context.Context, service string, fn func(context.Context) error) error {
	cb := r.get(service)
	_, err := cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return domain.NewSubSystemError(service, "BreakerRegistry.Execute", domain.ErrBreakerOpen, err.Error())
	}
	return err
}

// State reports the current breaker state for a service, for health checks
// and /metrics-style surfaces.
func (r *BreakerRegistry) State(service string) string {
	return r.get(service).State().String()
}
