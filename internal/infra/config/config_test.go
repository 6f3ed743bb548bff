package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, "sqlite")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load("/tmp/nonexistent-leadrunner-config-12345.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected defaults, got Server.Addr=%q", cfg.Server.Addr)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":9090"
model_router:
  simple_model: "gpt-fast"
  medium_model: "gpt-mid"
  complex_model: "gpt-big"
  fallback_model: "gpt-fallback"
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.ModelRouter.SimpleModel != "gpt-fast" {
		t.Errorf("ModelRouter.SimpleModel = %q, want %q", cfg.ModelRouter.SimpleModel, "gpt-fast")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIMPLE_MODEL", "env-simple")
	t.Setenv("EMAIL_API_KEY", "env-email-key")
	t.Setenv("QUEUE_MAX_CONCURRENT", "16")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.ModelRouter.SimpleModel != "env-simple" {
		t.Errorf("SimpleModel = %q, want %q", cfg.ModelRouter.SimpleModel, "env-simple")
	}
	if cfg.Carrier.EmailAPIKey != "env-email-key" {
		t.Errorf("EmailAPIKey = %q, want %q", cfg.Carrier.EmailAPIKey, "env-email-key")
	}
	if cfg.Queue.MaxConcurrent != 16 {
		t.Errorf("MaxConcurrent = %d, want 16", cfg.Queue.MaxConcurrent)
	}
}

func TestEnvOverridesMarketplaceKeyList(t *testing.T) {
	t.Setenv("MARKETPLACE_VALID_API_KEYS", "a, b ,c")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	want := []string{"a", "b", "c"}
	if len(cfg.Marketplace.ValidAPIKeys) != len(want) {
		t.Fatalf("ValidAPIKeys = %v, want %v", cfg.Marketplace.ValidAPIKeys, want)
	}
	for i, v := range want {
		if cfg.Marketplace.ValidAPIKeys[i] != v {
			t.Errorf("ValidAPIKeys[%d] = %q, want %q", i, cfg.Marketplace.ValidAPIKeys[i], v)
		}
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "insecure.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0666); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for insecure permissions")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("invalid: [yaml: bad"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidatePermissions(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte("test"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := validatePermissions(good); err != nil {
		t.Errorf("0600 should pass: %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("test"), 0666); err != nil {
		t.Fatal(err)
	}
	if err := validatePermissions(bad); err == nil {
		t.Error("0666 should fail")
	}
}

func TestValidatePermissionsStatError(t *testing.T) {
	err := validatePermissions("/tmp/nonexistent-file-for-stat-test-xyz.yaml")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoadReadError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unreadable.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0000); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for unreadable file")
	}
}
