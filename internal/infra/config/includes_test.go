package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// modelsYAML supplies the model_router keys Validate requires, so a main
// config that carries it passes Load's validation.
const modelsYAML = `
model_router:
  simple_model: "gpt-simple"
  medium_model: "gpt-medium"
  complex_model: "gpt-complex"
  fallback_model: "gpt-fallback"
`

func TestIncludesSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "carrier.yaml", `
carrier:
  from_email: "leads@example.com"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "carrier.yaml"
`+modelsYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Carrier.FromEmail != "leads@example.com" {
		t.Errorf("FromEmail not loaded from include: %+v", cfg.Carrier)
	}
}

func TestIncludesGlobPattern(t *testing.T) {
	dir := t.TempDir()
	subdir := filepath.Join(dir, "conf.d")
	if err := os.Mkdir(subdir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfigFile(t, subdir, "store.yaml", `
store:
  dsn: "/custom/leadrunner.db"
`)
	writeConfigFile(t, subdir, "queue.yaml", `
queue:
  max_concurrent: 4
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "conf.d/*.yaml"
`+modelsYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.DSN != "/custom/leadrunner.db" && cfg.Queue.MaxConcurrent != 4 {
		t.Error("glob includes had no effect")
	}
}

func TestIncludesRelativePath(t *testing.T) {
	dir := t.TempDir()
	subdir := filepath.Join(dir, "sub")
	if err := os.Mkdir(subdir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfigFile(t, subdir, "extra.yaml", `
logger:
  level: "debug"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "sub/extra.yaml"
`+modelsYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "debug")
	}
}

func TestIncludesAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	absFile := writeConfigFile(t, dir, "abs.yaml", `
logger:
  level: "warn"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "`+absFile+`"
`+modelsYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "warn" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "warn")
	}
}

func TestIncludesMainPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "override.yaml", `
server:
  addr: ":5000"
  rate_limit_rpm: 50
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "override.yaml"
server:
  addr: ":6000"
`+modelsYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":6000" {
		t.Errorf("Addr = %q, want :6000 (main should win)", cfg.Server.Addr)
	}
	if cfg.Server.RateLimitRPM != 50 {
		t.Errorf("RateLimitRPM = %d, want 50 (preserved from include)", cfg.Server.RateLimitRPM)
	}
}

func TestIncludesCircularDetection(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", `
includes:
  - "b.yaml"
`)
	writeConfigFile(t, dir, "b.yaml", `
includes:
  - "a.yaml"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "a.yaml"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected circular include error")
	}
	if !strings.Contains(err.Error(), "circular include") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIncludesSelfReference(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "config.yaml"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected circular include error for self-reference")
	}
	if !strings.Contains(err.Error(), "circular include") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIncludesPathTraversal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "../../../etc/passwd"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected path traversal error")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "escapes") && !strings.Contains(errStr, "permission") && !strings.Contains(errStr, "read") {
		t.Logf("error (acceptable): %v", err)
	}
}

func TestIncludesFilePermissions(t *testing.T) {
	dir := t.TempDir()
	badFile := filepath.Join(dir, "insecure.yaml")
	if err := os.WriteFile(badFile, []byte("logger:\n  level: debug\n"), 0666); err != nil {
		t.Fatal(err)
	}
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "insecure.yaml"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected permissions error for include file")
	}
	if !strings.Contains(err.Error(), "readable by group/other") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIncludesFileNotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "nonexistent.yaml"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing include file")
	}
}

func TestIncludesInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "bad.yaml", "invalid: [yaml: bad")
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "bad.yaml"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML in include")
	}
}

func TestIncludesNoIncludes(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
queue:
  max_concurrent: 15
`+modelsYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Queue.MaxConcurrent != 15 {
		t.Errorf("MaxConcurrent = %d, want 15", cfg.Queue.MaxConcurrent)
	}
}

func TestIncludesNestedIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "level2.yaml", `
logger:
  format: "json"
`)
	writeConfigFile(t, dir, "level1.yaml", `
includes:
  - "level2.yaml"
logger:
  level: "debug"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "level1.yaml"
`+modelsYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Format != "json" {
		t.Errorf("Logger.Format = %q, want %q (from nested include)", cfg.Logger.Format, "json")
	}
}

func TestIncludesMaxDepth(t *testing.T) {
	dir := t.TempDir()

	totalLevels := maxIncludeDepth + 2
	for i := totalLevels; i >= 1; i-- {
		name := fmt.Sprintf("level%d.yaml", i)
		var content string
		if i < totalLevels {
			next := fmt.Sprintf("level%d.yaml", i+1)
			content = fmt.Sprintf("includes:\n  - %q\n", next)
		}
		fpath := filepath.Join(dir, name)
		if err := os.WriteFile(fpath, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "level1.yaml"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected max depth error")
	}
	if !strings.Contains(err.Error(), "max depth") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIncludesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "empty.yaml", "")
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "empty.yaml"
`+modelsYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Server.Addr)
	}
}
