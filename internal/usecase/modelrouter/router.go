// Package modelrouter implements the Model Router: given a RoutedRequest it
// scores complexity, resolves a tier to a primary/fallback model pair, and
// invokes the underlying domain.LLMProvider chain through the circuit
// breaker, retrying once on the fallback model before surfacing a
// router-exhausted error (spec.md §4.4).
package modelrouter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"alfred-ai/internal/adapter/resilience"
	"alfred-ai/internal/domain"
	"alfred-ai/internal/infra/tracer"
)

// Router resolves RoutedRequests to a concrete provider call.
type Router struct {
	cfg      domain.RouterConfig
	registry ProviderRegistry
	breakers *resilience.BreakerRegistry
	logger   *slog.Logger
	encoder  *tiktoken.Tiktoken
}

// ProviderRegistry resolves a model name to the domain.LLMProvider that
// serves it, letting the router stay agnostic of which concrete adapter
// (OpenAI, Anthropic, Gemini, Ollama, OpenRouter, Bedrock) backs a model.
type ProviderRegistry interface {
	ProviderFor(model string) (domain.LLMProvider, error)
}

// New builds a Router. breakers may be nil, in which case calls are not
// circuit-broken (useful for tests).
func New(cfg domain.RouterConfig, registry ProviderRegistry, breakers *resilience.BreakerRegistry, logger *slog.Logger) *Router {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15000
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Router{cfg: cfg, registry: registry, breakers: breakers, logger: logger, encoder: enc}
}

// Route scores, selects a tier, and invokes the model, retrying once on the
// tier's fallback model per spec.md §4.4's invocation contract.
func (r *Router) Route(ctx context.Context, req domain.RoutedRequest) (*domain.RoutedResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "modelrouter.Route")
	defer span.End()

	complexity := score(req)
	tier := tierFor(complexity)

	models := r.cfg.Tiers[tier]
	if override, ok := r.cfg.AgentModelOverride[req.Agent]; ok && override != "" {
		models.Primary = override
	}
	if req.AgentModelOverride != "" {
		models.Primary = req.AgentModelOverride
	}

	timeout := time.Duration(r.cfg.Timeout) * time.Millisecond

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, model, err := r.invoke(callCtx, models.Primary, req)
	cancel()
	if err != nil && isRetryable(err) && models.Fallback != "" {
		r.logger.Warn("model router falling back", "primary", models.Primary, "fallback", models.Fallback, "err", err)
		fallbackCtx, cancelFallback := context.WithTimeout(ctx, timeout)
		resp, model, err = r.invoke(fallbackCtx, models.Fallback, req)
		cancelFallback()
	}
	if err != nil {
		return nil, domain.NewSubSystemError("modelrouter", "Router.Route", domain.ErrRouterExhausted, err.Error())
	}

	latency := time.Since(start).Milliseconds()
	inputTokens, outputTokens := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	if inputTokens == 0 && outputTokens == 0 {
		inputTokens, outputTokens = r.estimateTokens(req, resp.Message.Content)
	}

	return &domain.RoutedResponse{
		Model:        model,
		Complexity:   complexity,
		Tier:         tier,
		LatencyMs:    latency,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostEstimate: estimateCost(model, inputTokens, outputTokens),
		Content:      resp.Message.Content,
	}, nil
}

func (r *Router) invoke(ctx context.Context, model string, req domain.RoutedRequest) (*domain.ChatResponse, string, error) {
	provider, err := r.registry.ProviderFor(model)
	if err != nil {
		return nil, model, err
	}

	chatReq := toChatRequest(model, req)
	var resp *domain.ChatResponse

	call := func(ctx context.Context) error {
		var callErr error
		resp, callErr = provider.Chat(ctx, chatReq)
		return callErr
	}

	if r.breakers != nil {
		err = r.breakers.Execute(ctx, "model:"+provider.Name(), call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, model, err
	}
	return resp, model, nil
}

func toChatRequest(model string, req domain.RoutedRequest) domain.ChatRequest {
	messages := make([]domain.Message, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, req.History...)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: req.Prompt})

	return domain.ChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

// isRetryable reports whether a failed primary-model call should be retried
// on the tier's fallback model. Non-retryable failures (invalid auth,
// content-policy reject, quota exceeded) must not be retried per spec.md
// §4.4's "never retries the same model after a non-retryable failure"
// contract — since the fallback is a different model entirely, a permanent
// failure still allows one fallback attempt, but a breaker-open result does
// not (the breaker already knows the service is down).
func isRetryable(err error) bool {
	return !errors.Is(err, domain.ErrBreakerOpen)
}

// estimateTokens falls back to tiktoken-go counting when a provider does not
// report usage (spec.md supplement: populate inputTokens/outputTokens even
// when the provider is silent about it).
func (r *Router) estimateTokens(req domain.RoutedRequest, output string) (int, int) {
	if r.encoder == nil {
		return 0, 0
	}
	input := req.SystemPrompt + req.Prompt
	for _, m := range req.History {
		input += m.Content
	}
	return len(r.encoder.Encode(input, nil, nil)), len(r.encoder.Encode(output, nil, nil))
}

// estimateCost is a coarse per-model $/1K-token rate table; unknown models
// cost 0 rather than blocking the response.
func estimateCost(model string, inputTokens, outputTokens int) float64 {
	rate, ok := costPerThousand[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*rate.input + float64(outputTokens)/1000*rate.output
}

type tokenRate struct{ input, output float64 }

var costPerThousand = map[string]tokenRate{}

// RegisterCost lets deployment config populate per-model cost rates without
// the router package hardcoding a price list that goes stale.
func RegisterCost(model string, inputPerK, outputPerK float64) {
	costPerThousand[model] = tokenRate{input: inputPerK, output: outputPerK}
}
