package modelrouter

import (
	"fmt"
	"log/slog"
	"strings"

	"alfred-ai/internal/adapter/llm"
	"alfred-ai/internal/domain"
	"alfred-ai/internal/infra/config"
)

// ModelSpec names a tier's model string as "type:model" (e.g.
// "openai:gpt-4o-mini", "anthropic:claude-3-haiku", "bedrock:anthropic.claude-3-sonnet").
// A bare model name with no colon defaults to the "openai" type, since most
// OpenAI-compatible deployments (including local gateways) speak that wire
// format.
func parseModelSpec(model string) (kind, name string) {
	if i := strings.IndexByte(model, ':'); i >= 0 {
		return model[:i], model[i+1:]
	}
	return "openai", model
}

// registry wires one domain.LLMProvider per configured tier/fallback model,
// built from internal/infra/config.ModelRouterConfig, and satisfies
// modelrouter.ProviderRegistry.
type registry struct {
	providers map[string]domain.LLMProvider
}

// newBedrockProvider is set by providers_bedrock.go when built with the
// "bedrock" tag, mirroring adapter/llm/bedrock.go's own conditional build.
var newBedrockProvider func(llm.ProviderConfig, *slog.Logger) (domain.LLMProvider, error)

// NewProviderRegistry builds concrete provider adapters for every distinct
// model named in cfg's tiers, fallback, and agent overrides.
func NewProviderRegistry(cfg config.ModelRouterConfig, models []string, logger *slog.Logger) (*registry, error) {
	r := &registry{providers: make(map[string]domain.LLMProvider)}
	seen := make(map[string]bool)
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true

		kind, name := parseModelSpec(model)
		pcfg := llm.ProviderConfig{
			Name:        kind,
			Type:        kind,
			Model:       name,
			APIKey:      cfg.ProviderAPIKey,
			RespTimeout: 0,
		}

		provider, err := buildProvider(kind, pcfg, logger)
		if err != nil {
			return nil, fmt.Errorf("model router: building provider for %q: %w", model, err)
		}
		r.providers[model] = provider
	}
	return r, nil
}

func buildProvider(kind string, cfg llm.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch kind {
	case "openai":
		return llm.NewOpenAIProvider(cfg, logger), nil
	case "anthropic":
		return llm.NewAnthropicProvider(cfg, logger), nil
	case "gemini":
		return llm.NewGeminiProvider(cfg, logger), nil
	case "ollama":
		return llm.NewOllamaProvider(cfg, logger), nil
	case "openrouter":
		return llm.NewOpenRouterProvider(cfg, logger), nil
	case "bedrock":
		if newBedrockProvider == nil {
			return nil, fmt.Errorf("bedrock provider requested but binary was not built with -tags bedrock")
		}
		return newBedrockProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported model provider type %q", kind)
	}
}

// ProviderFor implements modelrouter.ProviderRegistry.
func (r *registry) ProviderFor(model string) (domain.LLMProvider, error) {
	p, ok := r.providers[model]
	if !ok {
		return nil, domain.NewDomainError("registry.ProviderFor", domain.ErrProviderNotFound, model)
	}
	return p, nil
}
