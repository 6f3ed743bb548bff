package engagement

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"alfred-ai/internal/domain"
)

// Engine is the per-lead state machine (spec.md §4.1). Only one transition
// may be in flight per lead at a time; concurrency across different leads is
// unbounded up to the caller's own worker pool sizing (Job Queue owns that).
type Engine struct {
	leads     domain.LeadStore
	convs     domain.ConversationStore
	campaigns domain.CampaignStore
	decisions domain.DecisionStore
	comms     domain.CommunicationStore
	orphans   domain.OrphanReplyStore

	overlord Overlord
	agents   AgentProvider
	jobs     JobEnqueuer
	touches  TouchCanceler
	events   domain.EventBus

	locker *LeadLocker
	logger *slog.Logger
}

// Deps bundles the Engine's collaborators, one field per injected port.
type Deps struct {
	Leads     domain.LeadStore
	Convs     domain.ConversationStore
	Campaigns domain.CampaignStore
	Decisions domain.DecisionStore
	Comms     domain.CommunicationStore
	Orphans   domain.OrphanReplyStore
	Overlord  Overlord
	Agents    AgentProvider
	Jobs      JobEnqueuer
	Touches   TouchCanceler
	Events    domain.EventBus
	Logger    *slog.Logger
}

// New builds an Engine. A dedicated LeadLocker enforces per-lead transition
// serialization (spec.md §4.1 "only one transition may be in flight per
// lead at a time").
func New(d Deps) *Engine {
	return &Engine{
		leads:     d.Leads,
		convs:     d.Convs,
		campaigns: d.Campaigns,
		decisions: d.Decisions,
		comms:     d.Comms,
		orphans:   d.Orphans,
		overlord:  d.Overlord,
		agents:    d.Agents,
		jobs:      d.Jobs,
		touches:   d.Touches,
		events:    d.Events,
		locker:    NewLeadLocker(),
		logger:    d.Logger,
	}
}

func newULID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func (e *Engine) publish(ctx context.Context, typ domain.EventType, leadID string, payload []byte) {
	e.events.Publish(ctx, domain.Event{
		Type:      typ,
		Timestamp: time.Now(),
		SessionID: leadID,
		Payload:   payload,
	})
}

// publishConv publishes a conversation-scoped event carrying the
// conversation id as JSON payload (domain.ConversationEventPayload), so
// subscribers like the Handover Evaluator don't have to guess which
// conversation a lead-scoped event concerns.
func (e *Engine) publishConv(ctx context.Context, typ domain.EventType, leadID, convID string) {
	payload, err := json.Marshal(domain.ConversationEventPayload{ConversationID: convID})
	if err != nil {
		e.logger.Error("failed to marshal conversation event payload", "leadId", leadID, "err", err)
		payload = nil
	}
	e.publish(ctx, typ, leadID, payload)
}

func (e *Engine) recordDecision(ctx context.Context, leadID string, agent domain.AgentKind, action, reasoning string, data any) {
	if err := e.decisions.Append(ctx, domain.Decision{
		LeadID:    leadID,
		AgentKind: agent,
		Action:    action,
		Reasoning: reasoning,
		Data:      data,
		Timestamp: time.Now(),
	}); err != nil {
		e.logger.Error("failed to append decision", "leadId", leadID, "err", err)
	}
}

// withLease runs fn while holding the per-lead transition lease.
func (e *Engine) withLease(ctx context.Context, leadID string, fn func(ctx context.Context) error) error {
	unlock, err := e.locker.Lock(ctx, leadID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

// archive transitions a lead to LeadArchived with a reason recorded in its
// metadata, publishing EventLeadArchived. CanTransition allows archival from
// every non-terminal status (spec.md §3); a lead that is already terminal is
// refused with ErrValidation.
func (e *Engine) archive(ctx context.Context, lead domain.Lead, reason string) (domain.Lead, error) {
	if !lead.Status.CanTransition(domain.LeadArchived) {
		return lead, domain.NewDomainError("Engine.archive", domain.ErrValidation,
			string(lead.Status)+" cannot transition to archived")
	}
	if lead.Metadata == nil {
		lead.Metadata = make(map[string]string)
	}
	lead.Metadata["archive_reason"] = reason
	lead.Status = domain.LeadArchived
	updated, err := e.leads.CompareAndSwap(ctx, lead)
	if err != nil {
		return lead, err
	}
	e.publish(ctx, domain.EventLeadArchived, updated.ID, nil)
	return updated, nil
}

func (e *Engine) transition(ctx context.Context, lead domain.Lead, next domain.LeadStatus) (domain.Lead, error) {
	if !lead.Status.CanTransition(next) {
		return lead, domain.NewDomainError("Engine.transition", domain.ErrValidation,
			string(lead.Status)+" cannot transition to "+string(next))
	}
	lead.Status = next
	updated, err := e.leads.CompareAndSwap(ctx, lead)
	if err != nil {
		return lead, err
	}
	e.publish(ctx, domain.EventLeadStateChanged, updated.ID, nil)
	return updated, nil
}
