// Package overlord implements the routing decision that assigns a newly
// ingested lead to an outbound channel (spec.md §4.2).
package overlord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"alfred-ai/internal/domain"
)

// discardLogger returns a no-op logger for an Overlord built without one.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ModelRouter is the subset of the Model Router the Overlord calls through.
// Implemented by internal/usecase/modelrouter.
type ModelRouter interface {
	Route(ctx context.Context, req domain.RoutedRequest) (*domain.RoutedResponse, error)
}

// Overlord is the routing agent that chooses a lead's initial channel and
// message focus, consulting contactability, channel preferences, and source
// heuristics (spec.md §4.2). The campaign's conversation mode does not affect
// its choice.
type Overlord struct {
	router ModelRouter
	logger *slog.Logger
}

// New builds an Overlord backed by router.
func New(router ModelRouter) *Overlord {
	return &Overlord{router: router, logger: discardLogger()}
}

// NewWithLogger builds an Overlord with debug logging.
func NewWithLogger(router ModelRouter, logger *slog.Logger) *Overlord {
	return &Overlord{router: router, logger: logger}
}

// modelDecision is the JSON shape requested from the model; it is translated
// into the closed domain.OverlordDecision variant before being returned, per
// spec.md §9's "duck-typed decisions" redesign flag.
type modelDecision struct {
	Action              string `json:"action"`
	Channel             string `json:"channel,omitempty"`
	InitialMessageFocus string `json:"initialMessageFocus,omitempty"`
	Reasoning           string `json:"reasoning"`
}

// Route implements engagement.Overlord. It always consults contactability
// and campaign policy before deferring to the model, and never returns a
// channel the lead cannot be reached on.
func (o *Overlord) Route(ctx context.Context, lead domain.Lead, campaign domain.Campaign) (domain.OverlordDecision, error) {
	if !lead.Contactable() {
		reasoning := "lead has no usable contact identifier"
		o.logger.Debug("overlord: no contactable channel", "leadId", lead.ID)
		return domain.OverlordDecision{Action: domain.ActionManualReview, Reasoning: reasoning}, nil
	}

	if preferred, ok := preferredChannel(lead, campaign); ok {
		return domain.OverlordDecision{
			Action:    domain.ActionAssignChannel,
			Channel:   preferred,
			Reasoning: "campaign primary channel preference is reachable",
		}, nil
	}

	req := domain.RoutedRequest{
		Prompt:           buildPrompt(lead, campaign),
		SystemPrompt:     overlordSystemPrompt,
		Agent:            domain.AgentOverlord,
		Decision:         domain.DecisionRouting,
		RequiresReasoning: false,
		BusinessCritical:  false,
	}

	resp, err := o.router.Route(ctx, req)
	if err != nil {
		o.logger.Debug("overlord: model router unavailable, caller falls back", "leadId", lead.ID, "err", err)
		return domain.OverlordDecision{}, fmt.Errorf("overlord: route lead %s: %w", lead.ID, err)
	}

	decision, err := parseDecision(resp.Content)
	if err != nil {
		return domain.OverlordDecision{}, fmt.Errorf("overlord: parse model decision for lead %s: %w", lead.ID, err)
	}
	if decision.Action == domain.ActionAssignChannel && !lead.HasChannel(decision.Channel) {
		o.logger.Debug("overlord: model chose unreachable channel, downgrading to manual review", "leadId", lead.ID, "channel", decision.Channel)
		return domain.OverlordDecision{Action: domain.ActionManualReview, Reasoning: "model selected a channel the lead cannot be reached on"}, nil
	}
	return decision, nil
}

// preferredChannel implements the channelPreferences consultation step of
// spec.md §4.2: a reachable configured primary preference short-circuits the
// model call entirely. Campaign conversationMode (template_only/ai_only/auto)
// does not affect channel choice, only how messages on the chosen channel
// are composed later (spec.md §4.3).
func preferredChannel(lead domain.Lead, campaign domain.Campaign) (domain.LeadChannel, bool) {
	prefs := campaign.Settings.ChannelPreferences
	if prefs.Primary != "" && lead.HasChannel(prefs.Primary) {
		return prefs.Primary, true
	}
	return "", false
}

const overlordSystemPrompt = `You are the Overlord routing agent for a lead-engagement pipeline.
Given a lead and its campaign, choose an outbound channel assignment.
Respond with JSON: {"action":"assign_channel|skip|manual_review","channel":"email|sms|chat","initialMessageFocus":"...","reasoning":"..."}.
Never choose a channel the lead has no contact identifier for.`

func buildPrompt(lead domain.Lead, campaign domain.Campaign) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lead source: %s\n", lead.Source)
	fmt.Fprintf(&b, "Has email: %t, has phone: %t\n", lead.Email != "", lead.Phone != "")
	if campaign.ID != "" {
		fmt.Fprintf(&b, "Campaign primary channel preference: %s\n", campaign.Settings.ChannelPreferences.Primary)
		fmt.Fprintf(&b, "Campaign fallback channels: %v\n", campaign.Settings.ChannelPreferences.Fallback)
	}
	if strings.Contains(strings.ToLower(lead.Source), "email") {
		b.WriteString("Source heuristic: lead originated from inbound email; prefer email.\n")
	}
	return b.String()
}

func parseDecision(content string) (domain.OverlordDecision, error) {
	var md modelDecision
	if err := json.Unmarshal([]byte(content), &md); err != nil {
		return domain.OverlordDecision{}, err
	}
	action := domain.DecisionAction(md.Action)
	switch action {
	case domain.ActionAssignChannel, domain.ActionSkip, domain.ActionManualReview:
	default:
		return domain.OverlordDecision{}, fmt.Errorf("unrecognized decision action %q", md.Action)
	}
	return domain.OverlordDecision{
		Action:              action,
		Channel:             domain.LeadChannel(md.Channel),
		InitialMessageFocus: md.InitialMessageFocus,
		Reasoning:           md.Reasoning,
	}, nil
}
