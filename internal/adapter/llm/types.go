package llm

import "time"

// PoolConfig sizes the HTTP connection pool a provider's client uses.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig is the per-provider wiring the Model Router resolves from
// internal/infra/config.ModelRouterConfig before constructing a concrete
// provider adapter (openai.go, anthropic.go, gemini.go, ollama.go,
// openrouter.go, bedrock.go).
type ProviderConfig struct {
	Name        string
	Type        string
	Model       string
	APIKey      string
	BaseURL     string
	Region      string
	ConnTimeout time.Duration
	RespTimeout time.Duration
	Pool        PoolConfig
}
