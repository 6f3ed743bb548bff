package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level leadrunner configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logger      LoggerConfig      `yaml:"logger"`
	Tracer      TracerConfig      `yaml:"tracer"`
	Store       StoreConfig       `yaml:"store"`
	ModelRouter ModelRouterConfig `yaml:"model_router"`
	Carrier     CarrierConfig     `yaml:"carrier"`
	IMAP        IMAPConfig        `yaml:"imap"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Queue       QueueConfig       `yaml:"queue"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	Handover    HandoverConfig    `yaml:"handover"`
	Includes    []string          `yaml:"includes,omitempty"`
}

// ServerConfig holds the two HTTP surfaces leadrunner serves: the
// partner-facing ingress API and the carrier-facing webhook receiver.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	WebhookAddr    string        `yaml:"webhook_addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RateLimitRPM   int           `yaml:"rate_limit_rpm"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	StatusAPIKeys  []string      `yaml:"status_api_keys,omitempty"`
}

// LoggerConfig holds logging settings, same shape the teacher uses.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "noop" | "stdout"
	Endpoint string `yaml:"endpoint"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// ModelRouterConfig configures the Model Router's tiers and providers.
type ModelRouterConfig struct {
	ProviderAPIKey     string            `yaml:"provider_api_key"`
	SimpleModel        string            `yaml:"simple_model"`
	MediumModel        string            `yaml:"medium_model"`
	ComplexModel       string            `yaml:"complex_model"`
	FallbackModel      string            `yaml:"fallback_model"`
	TimeoutMS          int               `yaml:"timeout_ms"`
	AgentModelOverride map[string]string `yaml:"agent_model_override,omitempty"`
}

// CarrierConfig holds email/SMS carrier credentials.
type CarrierConfig struct {
	EmailAPIURL   string `yaml:"email_api_url"`
	EmailAPIKey   string `yaml:"email_api_key"`
	EmailDomain   string `yaml:"email_domain"`
	FromEmail     string `yaml:"from_email"`
	SMSAccountSID string `yaml:"sms_account_sid"`
	SMSAuthToken  string `yaml:"sms_auth_token"`
	OutboundPhone string `yaml:"outbound_phone_number"`
	SlackBotToken string `yaml:"slack_bot_token,omitempty"`
	CRMAPIKey     string `yaml:"crm_api_key,omitempty"`
}

// IMAPConfig holds inbound email scanner credentials.
type IMAPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Mailbox      string        `yaml:"mailbox"`
	UseTLS       bool          `yaml:"use_tls"`
	Rules        []IMAPRule    `yaml:"rules,omitempty"`
}

// IMAPRule mirrors internal/adapter/inbound/imapscanner.Rule so pattern
// matches and their actions are configured rather than hardcoded.
type IMAPRule struct {
	Name             string   `yaml:"name"`
	SubjectContains  string   `yaml:"subject_contains,omitempty"`
	FromContains     string   `yaml:"from_contains,omitempty"`
	BodyContains     string   `yaml:"body_contains,omitempty"`
	CreateLead       bool     `yaml:"create_lead"`
	AssignCampaignID string   `yaml:"assign_campaign_id,omitempty"`
	SetPriority      string   `yaml:"set_priority,omitempty"`
	AddTags          []string `yaml:"add_tags,omitempty"`
}

// MarketplaceConfig holds partner lead-marketplace credentials.
type MarketplaceConfig struct {
	APIURL       string   `yaml:"api_url"`
	APIKey       string   `yaml:"api_key"`
	ValidAPIKeys []string `yaml:"valid_api_keys"`
}

// QueueConfig holds Job Queue tuning.
type QueueConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	RetryDelayMS  int `yaml:"retry_delay_ms"`
	MaxRetries    int `yaml:"max_retries"`
}

// BreakerConfig holds the circuit breaker thresholds applied to every
// service in the breaker registry.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// HandoverConfig holds default handover destinations.
type HandoverConfig struct {
	WebhookSecret      string            `yaml:"webhook_secret"`
	DefaultCRMFieldMap map[string]string `yaml:"default_crm_field_map,omitempty"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".leadrunner", "data")
}

// Defaults returns a Config with sensible defaults, matching the teacher's
// Defaults()-then-Load()-then-ApplyEnvOverrides() sequencing.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			WebhookAddr:    ":8081",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			RateLimitRPM:   120,
			RateLimitBurst: 20,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(dataDir, "leadrunner.db"),
		},
		ModelRouter: ModelRouterConfig{
			TimeoutMS: 15000,
		},
		Queue: QueueConfig{
			MaxConcurrent: 8,
			RetryDelayMS:  1000,
			MaxRetries:    5,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		IMAP: IMAPConfig{
			Port:         993,
			PollInterval: 2 * time.Minute,
			Mailbox:      "INBOX",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and validates.
// Mirrors the teacher's Load(path) contract: a missing file falls back to
// Defaults()+env overrides rather than erroring.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps the env keys spec.md §6 names onto cfg, following
// the teacher's ALFREDAI_*-prefixed pattern generalized to these unprefixed
// domain key names.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("MODEL_PROVIDER_KEY"); v != "" {
		cfg.ModelRouter.ProviderAPIKey = v
	}
	if v := os.Getenv("SIMPLE_MODEL"); v != "" {
		cfg.ModelRouter.SimpleModel = v
	}
	if v := os.Getenv("MEDIUM_MODEL"); v != "" {
		cfg.ModelRouter.MediumModel = v
	}
	if v := os.Getenv("COMPLEX_MODEL"); v != "" {
		cfg.ModelRouter.ComplexModel = v
	}
	if v := os.Getenv("FALLBACK_MODEL"); v != "" {
		cfg.ModelRouter.FallbackModel = v
	}
	if v := os.Getenv("EMAIL_API_URL"); v != "" {
		cfg.Carrier.EmailAPIURL = v
	}
	if v := os.Getenv("EMAIL_API_KEY"); v != "" {
		cfg.Carrier.EmailAPIKey = v
	}
	if v := os.Getenv("EMAIL_DOMAIN"); v != "" {
		cfg.Carrier.EmailDomain = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.Carrier.FromEmail = v
	}
	if v := os.Getenv("SMS_ACCOUNT_SID"); v != "" {
		cfg.Carrier.SMSAccountSID = v
	}
	if v := os.Getenv("SMS_AUTH_TOKEN"); v != "" {
		cfg.Carrier.SMSAuthToken = v
	}
	if v := os.Getenv("OUTBOUND_PHONE_NUMBER"); v != "" {
		cfg.Carrier.OutboundPhone = v
	}
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Carrier.SlackBotToken = v
	}
	if v := os.Getenv("CRM_API_KEY"); v != "" {
		cfg.Carrier.CRMAPIKey = v
	}
	if v := os.Getenv("IMAP_HOST"); v != "" {
		cfg.IMAP.Host = v
	}
	if v := os.Getenv("IMAP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IMAP.Port = n
		}
	}
	if v := os.Getenv("IMAP_USER"); v != "" {
		cfg.IMAP.User = v
	}
	if v := os.Getenv("IMAP_PASSWORD"); v != "" {
		cfg.IMAP.Password = v
	}
	if v := os.Getenv("MARKETPLACE_API_URL"); v != "" {
		cfg.Marketplace.APIURL = v
	}
	if v := os.Getenv("MARKETPLACE_API_KEY"); v != "" {
		cfg.Marketplace.APIKey = v
	}
	if v := os.Getenv("MARKETPLACE_VALID_API_KEYS"); v != "" {
		cfg.Marketplace.ValidAPIKeys = splitAndTrim(v, ",")
	}
	if v := os.Getenv("QUEUE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Queue.MaxConcurrent = n
		}
	}
	if v := os.Getenv("QUEUE_RETRY_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Queue.RetryDelayMS = n
		}
	}
	if v := os.Getenv("QUEUE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Queue.MaxRetries = n
		}
	}
	if v := os.Getenv("TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WEBHOOK_ADDR"); v != "" {
		cfg.Server.WebhookAddr = v
	}
	if v := os.Getenv("STATUS_API_KEYS"); v != "" {
		cfg.Server.StatusAPIKeys = splitAndTrim(v, ",")
	}
	if v := os.Getenv("HANDOVER_WEBHOOK_SECRET"); v != "" {
		cfg.Handover.WebhookSecret = v
	}
}

// validatePermissions rejects config files readable by group/other, since
// they may carry carrier/IMAP/marketplace credentials in plaintext.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config %q: %w", path, err)
	}
	if info.Mode().Perm()&0077 != 0 {
		return fmt.Errorf("config %q is readable by group/other (mode %o); chmod 600 it", path, info.Mode().Perm())
	}
	return nil
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
