package modelrouter

import (
	"alfred-ai/internal/domain"
	"alfred-ai/internal/infra/config"
)

// RouterConfigFrom builds the domain.RouterConfig the Router needs from the
// loaded application config, with the fallback model shared across all three
// tiers per spec.md §4.4 ("retries once on the fallback model").
func RouterConfigFrom(cfg config.ModelRouterConfig) domain.RouterConfig {
	overrides := make(map[domain.AgentKind]string, len(cfg.AgentModelOverride))
	for agent, model := range cfg.AgentModelOverride {
		overrides[domain.AgentKind(agent)] = model
	}

	return domain.RouterConfig{
		Tiers: map[domain.ModelTier]domain.TierModels{
			domain.TierSimple:  {Primary: cfg.SimpleModel, Fallback: cfg.FallbackModel},
			domain.TierMedium:  {Primary: cfg.MediumModel, Fallback: cfg.FallbackModel},
			domain.TierComplex: {Primary: cfg.ComplexModel, Fallback: cfg.FallbackModel},
		},
		AgentModelOverride: overrides,
		Timeout:            cfg.TimeoutMS,
	}
}

// ModelsIn lists every model string a RouterConfig references, for
// NewProviderRegistry to build adapters for. A model named more than once
// (such as a shared fallback) appears more than once; NewProviderRegistry
// skips the repeats.
func ModelsIn(cfg domain.RouterConfig) []string {
	models := make([]string, 0, len(cfg.Tiers)*2+len(cfg.AgentModelOverride))
	for _, t := range cfg.Tiers {
		models = append(models, t.Primary, t.Fallback)
	}
	for _, m := range cfg.AgentModelOverride {
		models = append(models, m)
	}
	return models
}
