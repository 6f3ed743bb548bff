package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.ModelRouter.SimpleModel = "gpt-simple"
	cfg.ModelRouter.MediumModel = "gpt-medium"
	cfg.ModelRouter.ComplexModel = "gpt-complex"
	cfg.ModelRouter.FallbackModel = "gpt-fallback"
	return cfg
}

func TestValidateValidConfigPasses(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("valid config should pass: %v", err)
	}
}

func TestValidateDefaultsFailWithoutModels(t *testing.T) {
	err := Validate(Defaults())
	if err == nil {
		t.Fatal("expected validation error: defaults have no model_router models configured")
	}
	assertContains(t, err.Error(), "simple_model, medium_model, and complex_model must all be set")
}

func TestValidateServerAddrEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Addr = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "server.addr must not be empty")
}

func TestValidateServerAddrMalformed(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Addr = "not-a-host-port"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "not a valid host:port")
}

func TestValidateServerRateLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Server.RateLimitRPM = 0
	cfg.Server.RateLimitBurst = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "server.rate_limit_rpm must be > 0")
	assertContains(t, err.Error(), "server.rate_limit_burst must be > 0")
}

func TestValidateStoreInvalidDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "postgres"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `store.driver "postgres" is invalid`)
}

func TestValidateStoreDSNEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.Store.DSN = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "store.dsn must not be empty")
}

func TestValidateModelRouterMissingModels(t *testing.T) {
	cfg := validConfig()
	cfg.ModelRouter.MediumModel = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "simple_model, medium_model, and complex_model must all be set")
}

func TestValidateModelRouterFallbackEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.ModelRouter.FallbackModel = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "model_router.fallback_model must not be empty")
}

func TestValidateModelRouterTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.ModelRouter.TimeoutMS = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "model_router.timeout_ms must be > 0")
}

func TestValidateQueueFields(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.MaxConcurrent = 0
	cfg.Queue.RetryDelayMS = 0
	cfg.Queue.MaxRetries = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "queue.max_concurrent must be > 0")
	assertContains(t, err.Error(), "queue.retry_delay_ms must be > 0")
	assertContains(t, err.Error(), "queue.max_retries must be > 0")
}

func TestValidateBreakerFields(t *testing.T) {
	cfg := validConfig()
	cfg.Breaker.MaxFailures = 0
	cfg.Breaker.Timeout = 0
	cfg.Breaker.Interval = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "breaker.max_failures must be > 0")
	assertContains(t, err.Error(), "breaker.timeout must be > 0")
	assertContains(t, err.Error(), "breaker.interval must be > 0")
}

func TestValidateBreakerValidDurations(t *testing.T) {
	cfg := validConfig()
	cfg.Breaker.Timeout = 30 * time.Second
	cfg.Breaker.Interval = 60 * time.Second
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid: %v", err)
	}
}

func TestValidateMultipleErrorsAccumulate(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Addr = ""
	cfg.Store.Driver = "bogus"
	cfg.Queue.MaxRetries = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) < 3 {
		t.Errorf("expected at least 3 errors, got %d: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidationErrorFormat(t *testing.T) {
	ve := &ValidationError{}
	ve.Add("first error")
	ve.Add("second error")

	msg := ve.Error()
	if !strings.HasPrefix(msg, "config validation failed:") {
		t.Errorf("unexpected prefix: %s", msg)
	}
	if !strings.Contains(msg, "first error") || !strings.Contains(msg, "second error") {
		t.Errorf("missing error details: %s", msg)
	}
}

func TestValidationErrorHasErrors(t *testing.T) {
	ve := &ValidationError{}
	if ve.HasErrors() {
		t.Error("empty ValidationError should report HasErrors() == false")
	}
	ve.Add("something wrong")
	if !ve.HasErrors() {
		t.Error("expected HasErrors() == true after Add")
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
