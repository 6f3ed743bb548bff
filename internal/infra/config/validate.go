package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness, returning a
// *ValidationError listing every problem found rather than failing fast.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateStore(cfg, ve)
	validateModelRouter(cfg, ve)
	validateQueue(cfg, ve)
	validateBreaker(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is not a valid host:port", cfg.Server.Addr)
	}
	if cfg.Server.RateLimitRPM <= 0 {
		ve.Add("server.rate_limit_rpm must be > 0")
	}
	if cfg.Server.RateLimitBurst <= 0 {
		ve.Add("server.rate_limit_burst must be > 0")
	}
}

var validStoreDrivers = map[string]bool{"sqlite": true}

func validateStore(cfg *Config, ve *ValidationError) {
	if !validStoreDrivers[cfg.Store.Driver] {
		ve.Add("store.driver %q is invalid (want: sqlite)", cfg.Store.Driver)
	}
	if cfg.Store.DSN == "" {
		ve.Add("store.dsn must not be empty")
	}
}

func validateModelRouter(cfg *Config, ve *ValidationError) {
	mr := cfg.ModelRouter
	if mr.SimpleModel == "" || mr.MediumModel == "" || mr.ComplexModel == "" {
		ve.Add("model_router: simple_model, medium_model, and complex_model must all be set")
	}
	if mr.FallbackModel == "" {
		ve.Add("model_router.fallback_model must not be empty")
	}
	if mr.TimeoutMS <= 0 {
		ve.Add("model_router.timeout_ms must be > 0")
	}
}

func validateQueue(cfg *Config, ve *ValidationError) {
	if cfg.Queue.MaxConcurrent <= 0 {
		ve.Add("queue.max_concurrent must be > 0")
	}
	if cfg.Queue.RetryDelayMS <= 0 {
		ve.Add("queue.retry_delay_ms must be > 0")
	}
	if cfg.Queue.MaxRetries <= 0 {
		ve.Add("queue.max_retries must be > 0")
	}
}

func validateBreaker(cfg *Config, ve *ValidationError) {
	if cfg.Breaker.MaxFailures == 0 {
		ve.Add("breaker.max_failures must be > 0")
	}
	if cfg.Breaker.Timeout <= 0 {
		ve.Add("breaker.timeout must be > 0")
	}
	if cfg.Breaker.Interval <= 0 {
		ve.Add("breaker.interval must be > 0")
	}
}
