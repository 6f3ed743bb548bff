package handover

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"alfred-ai/internal/domain"
)

// narrativeResponse is the model's JSON shape for the Dossier's free-text
// fields, mirroring overlord's modelDecision/channelagent's signalsResponse
// JSON-decision convention.
type narrativeResponse struct {
	Context           string   `json:"context"`
	Highlights        []string `json:"highlights"`
	Tone              string   `json:"tone"`
	EngagementPattern string   `json:"engagementPattern"`
	BuyerType         string   `json:"buyerType"`
	KeyHooks          []string `json:"keyHooks"`
	Approach          string   `json:"approach"`
	Timeline          string   `json:"timeline"`
	UrgentActions     []string `json:"urgentActions"`
}

// buildDossier assembles the human-facing handover package. The narrative
// fields come from a best-effort Model Router call; a router failure falls
// back to a templated summary so a handover never goes undelivered for want
// of prose (spec.md §4.7's dossier is the trigger event's payload, not the
// trigger condition itself).
func (e *Evaluator) buildDossier(ctx context.Context, lead domain.Lead, conv domain.LeadConversation, signals domain.EvaluateSignals, trip tripResult) domain.Dossier {
	snapshot := domain.LeadSnapshot{
		Name:      lead.Name,
		Contact:   primaryContact(lead),
		Origin:    lead.Source,
		Interests: signals.BuyingSignals,
	}

	narrative, err := e.narrate(ctx, lead, conv, signals)
	if err != nil {
		e.logger.Warn("handover: dossier narrative generation failed, using fallback summary", "leadId", lead.ID, "err", err)
		narrative = fallbackNarrative(conv, signals)
	}

	return domain.Dossier{
		Context:      narrative.Context,
		LeadSnapshot: snapshot,
		CommunicationSummary: domain.CommunicationSummary{
			Highlights:        narrative.Highlights,
			Tone:              narrative.Tone,
			EngagementPattern: narrative.EngagementPattern,
		},
		ProfileAnalysis: domain.ProfileAnalysis{
			BuyerType: narrative.BuyerType,
			KeyHooks:  narrative.KeyHooks,
		},
		Trigger: domain.HandoverTrigger{
			Reason:          trip.Reason,
			Score:           trip.Score,
			Urgency:         trip.Urgency,
			CriteriaTripped: trip.CriteriaTripped,
		},
		RecommendedActions: domain.RecommendedActions{
			Approach:      narrative.Approach,
			Timeline:      narrative.Timeline,
			UrgentActions: narrative.UrgentActions,
		},
	}
}

func (e *Evaluator) narrate(ctx context.Context, lead domain.Lead, conv domain.LeadConversation, signals domain.EvaluateSignals) (narrativeResponse, error) {
	if e.router == nil {
		return narrativeResponse{}, fmt.Errorf("handover: no model router configured")
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
		Prompt: "Summarize this qualified lead's conversation for the human who will take over. Respond as JSON: " +
			`{"context":"...","highlights":["..."],"tone":"...","engagementPattern":"...",` +
			`"buyerType":"...","keyHooks":["..."],"approach":"...","timeline":"...","urgentActions":["..."]}`,
		SystemPrompt: "You write concise handover dossiers for sales reps taking over a qualified lead.",
		Agent:        domain.AgentOverlord,
		Decision:     domain.DecisionAnalysis,
		History:      history,
	}
	resp, err := e.router.Route(ctx, req)
	if err != nil {
		return narrativeResponse{}, fmt.Errorf("handover: narrate: %w", err)
	}

	var parsed narrativeResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return narrativeResponse{}, fmt.Errorf("handover: parse narrative response: %w", err)
	}
	return parsed, nil
}

// fallbackNarrative builds a plain, deterministic dossier body when the
// model is unavailable, from the conversation's raw signals.
func fallbackNarrative(conv domain.LeadConversation, signals domain.EvaluateSignals) narrativeResponse {
	context := fmt.Sprintf("%d-message conversation over %s.", conv.MessageCount(), conv.ElapsedSince().Round(time.Minute))
	if last, ok := conv.LastInbound(); ok {
		context += " Latest reply: " + last.Content
	}
	return narrativeResponse{
		Context:           context,
		Highlights:        signals.KeywordsHit,
		Tone:              string(signals.Sentiment),
		EngagementPattern: "unavailable: model router error",
		BuyerType:         "unknown",
		Approach:          "Review the conversation history before reaching out.",
	}
}

func primaryContact(lead domain.Lead) string {
	if lead.Email != "" {
		return lead.Email
	}
	return lead.Phone
}

func newULID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
