// Package channelagent composes outbound message content for one channel
// (spec.md §4.3). It does not dispatch messages; that remains the
// Engagement Engine's responsibility.
package channelagent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"alfred-ai/internal/domain"
	"alfred-ai/internal/usecase/engagement"
)

// ModelRouter is the subset of the Model Router a channel agent calls
// through for ai_only/auto composition. Implemented by
// internal/usecase/modelrouter.
type ModelRouter interface {
	Route(ctx context.Context, req domain.RoutedRequest) (*domain.RoutedResponse, error)
}

// optOutPattern matches the opt-out keywords spec.md §4.3 requires: whole-word,
// case-insensitive, within the first 40 characters of a reply.
var optOutPattern = regexp.MustCompile(`(?i)\b(stop|unsubscribe|cancel)\b`)

// IsOptOut reports whether content's first 40 characters contain an opt-out keyword.
func IsOptOut(content string) bool {
	head := content
	if len(head) > 40 {
		head = head[:40]
	}
	return optOutPattern.MatchString(head)
}

// Agent composes messages for one channel, consulting the assigned
// EngagementAgent's persona, the campaign's TouchSequence templates, and its
// conversationMode (spec.md §4.2, §4.3).
type Agent struct {
	channel   domain.LeadChannel
	agentCfg  domain.EngagementAgent
	templates domain.TemplateStore
	router    ModelRouter
}

// New builds an Agent for one channel.
func New(channel domain.LeadChannel, agentCfg domain.EngagementAgent, templates domain.TemplateStore, router ModelRouter) *Agent {
	return &Agent{channel: channel, agentCfg: agentCfg, templates: templates, router: router}
}

// ComposeInitial implements engagement.ChannelAgent. template_only campaigns
// render the first TouchSequence step's template; ai_only and auto defer to
// the Model Router.
func (a *Agent) ComposeInitial(ctx context.Context, lead domain.Lead, conv domain.LeadConversation, campaign domain.Campaign) (string, error) {
	if campaign.ConversationMode == domain.ModeTemplateOnly && len(campaign.TouchSequence) > 0 {
		return a.renderTemplate(ctx, campaign.TouchSequence[0].TemplateID, lead)
	}

	req := domain.RoutedRequest{
		Prompt:       a.composePrompt(lead, campaign),
		SystemPrompt: a.systemPrompt(),
		Agent:        agentKindFor(a.channel),
		Decision:     domain.DecisionGeneration,
	}
	resp, err := a.router.Route(ctx, req)
	if err != nil {
		if campaign.ConversationMode == domain.ModeAIOnly || len(campaign.TouchSequence) == 0 {
			return "", fmt.Errorf("channelagent: compose initial for lead %s: %w", lead.ID, err)
		}
		// auto mode tolerates model outage by falling back to the template.
		return a.renderTemplate(ctx, campaign.TouchSequence[0].TemplateID, lead)
	}
	return resp.Content, nil
}

// ComposeReply implements engagement.ChannelAgent. Replies containing an
// opt-out keyword cause the agent to decline (spec.md §4.3); the Engagement
// Engine is responsible for transitioning the conversation to closed(opt_out).
func (a *Agent) ComposeReply(ctx context.Context, lead domain.Lead, conv domain.LeadConversation, campaign domain.Campaign) (string, error) {
	last, ok := conv.LastInbound()
	if ok && IsOptOut(last.Content) {
		return "", domain.NewDomainError("Agent.ComposeReply", domain.ErrCannotContinue, "opt_out")
	}

	history := make([]domain.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		role := "assistant"
		if m.Direction == domain.DirectionInbound {
			role = "user"
		}
		history = append(history, domain.Message{Role: role, Content: m.Content, Timestamp: m.Timestamp})
	}

	req := domain.RoutedRequest{
		Prompt:       "Compose the next reply in this conversation.",
		SystemPrompt: a.systemPrompt(),
		Agent:        agentKindFor(a.channel),
		Decision:     domain.DecisionConversation,
		History:      history,
	}
	resp, err := a.router.Route(ctx, req)
	if err != nil {
		return "", fmt.Errorf("channelagent: compose reply for lead %s: %w", lead.ID, err)
	}
	return resp.Content, nil
}

// signalsResponse is the model's JSON-decision shape for EvaluateSignals,
// mirroring the overlord package's modelDecision convention.
type signalsResponse struct {
	QualificationScore float64  `json:"qualificationScore"`
	Sentiment          string   `json:"sentiment"`
	BuyingSignals      []string `json:"buyingSignals"`
	KeywordsHit        []string `json:"keywordsHit"`
}

// EvaluateSignals implements engagement.ChannelAgent, asking the Model
// Router for a qualification read on the conversation so far. The Handover
// Evaluator treats an error here as "no criteria tripped this tick" and
// simply re-evaluates on the next conversation append.
func (a *Agent) EvaluateSignals(ctx context.Context, conv domain.LeadConversation) (domain.EvaluateSignals, error) {
	history := make([]domain.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		role := "assistant"
		if m.Direction == domain.DirectionInbound {
			role = "user"
		}
		history = append(history, domain.Message{Role: role, Content: m.Content, Timestamp: m.Timestamp})
	}

	req := domain.RoutedRequest{
		Prompt: "Evaluate this conversation's buying signals. Respond as JSON: " +
			`{"qualificationScore":0-10,"sentiment":"positive|neutral|negative","buyingSignals":[...],"keywordsHit":[...]}`,
		SystemPrompt: a.systemPrompt(),
		Agent:        agentKindFor(a.channel),
		Decision:     domain.DecisionEvaluation,
		History:      history,
	}
	resp, err := a.router.Route(ctx, req)
	if err != nil {
		return domain.EvaluateSignals{}, fmt.Errorf("channelagent: evaluate signals: %w", err)
	}

	var parsed signalsResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return domain.EvaluateSignals{}, fmt.Errorf("channelagent: parse signals response: %w", err)
	}
	return domain.EvaluateSignals{
		QualificationScore: parsed.QualificationScore,
		Sentiment:          domain.Sentiment(parsed.Sentiment),
		BuyingSignals:      parsed.BuyingSignals,
		KeywordsHit:        parsed.KeywordsHit,
	}, nil
}

func (a *Agent) renderTemplate(ctx context.Context, templateID string, lead domain.Lead) (string, error) {
	tmpl, err := a.templates.Get(ctx, templateID)
	if err != nil {
		return "", fmt.Errorf("channelagent: load template %s: %w", templateID, err)
	}
	_, body := tmpl.Render(map[string]string{"name": lead.Name})
	return body, nil
}

func (a *Agent) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s engagement agent. Goal: %s\n", a.channel, a.agentCfg.EndGoal)
	if a.agentCfg.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", a.agentCfg.Personality)
	}
	for _, d := range a.agentCfg.Instructions.Dos {
		fmt.Fprintf(&b, "Do: %s\n", d)
	}
	for _, d := range a.agentCfg.Instructions.Donts {
		fmt.Fprintf(&b, "Don't: %s\n", d)
	}
	if a.agentCfg.DomainExpertise != "" {
		fmt.Fprintf(&b, "Domain expertise: %s\n", a.agentCfg.DomainExpertise)
	}
	return b.String()
}

func (a *Agent) composePrompt(lead domain.Lead, campaign domain.Campaign) string {
	return fmt.Sprintf("Compose an initial outbound message to %s (source: %s) for campaign %s.", lead.Name, lead.Source, campaign.Name)
}

func agentKindFor(ch domain.LeadChannel) domain.AgentKind {
	switch ch {
	case domain.ChannelEmail:
		return domain.AgentEmail
	case domain.ChannelSMS:
		return domain.AgentSMS
	case domain.ChannelChat:
		return domain.AgentChat
	default:
		return domain.AgentChat
	}
}

// Provider resolves a channelagent.Agent per channel from persisted
// EngagementAgent configuration, implementing engagement.AgentProvider.
type Provider struct {
	agents    domain.EngagementAgentStore
	templates domain.TemplateStore
	router    ModelRouter
}

// NewProvider builds a Provider.
func NewProvider(agents domain.EngagementAgentStore, templates domain.TemplateStore, router ModelRouter) *Provider {
	return &Provider{agents: agents, templates: templates, router: router}
}

func (p *Provider) ChannelAgent(ch domain.LeadChannel) (engagement.ChannelAgent, error) {
	kind := agentKindFor(ch)
	cfg, err := p.agents.GetByKind(context.Background(), kind)
	if err != nil {
		return nil, fmt.Errorf("channelagent: no agent configured for channel %s: %w", ch, err)
	}
	return New(ch, cfg, p.templates, p.router), nil
}
