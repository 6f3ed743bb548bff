//go:build bedrock

package modelrouter

import (
	"log/slog"

	"alfred-ai/internal/adapter/llm"
	"alfred-ai/internal/domain"
)

func init() {
	newBedrockProvider = func(cfg llm.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
		return llm.NewBedrockProvider(cfg, logger)
	}
}
