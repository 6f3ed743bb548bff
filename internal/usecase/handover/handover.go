// Package handover implements the Handover Evaluator: it watches every
// conversation append, trips a handover the first time any configured
// criterion crosses its threshold, and fans a Dossier out to the campaign's
// configured human destinations (spec.md §4.7).
package handover

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"alfred-ai/internal/domain"
)

// ChannelAgent is the subset of engagement.ChannelAgent the Evaluator reads
// qualification signals through. Implemented by internal/usecase/channelagent.
type ChannelAgent interface {
	EvaluateSignals(ctx context.Context, conv domain.LeadConversation) (domain.EvaluateSignals, error)
}

// AgentProvider resolves the ChannelAgent for a conversation's channel.
type AgentProvider interface {
	ChannelAgent(ch domain.LeadChannel) (ChannelAgent, error)
}

// ModelRouter is the subset of the Model Router the Evaluator calls to draft
// the Dossier's narrative fields.
type ModelRouter interface {
	Route(ctx context.Context, req domain.RoutedRequest) (*domain.RoutedResponse, error)
}

// Marker transitions a lead to handed_over once dispatch completes.
// Implemented by internal/usecase/engagement.Engine.MarkHandedOver.
type Marker interface {
	MarkHandedOver(ctx context.Context, leadID, reason string) error
}

// Sender delivers a Dossier to one Destination kind. Implemented per-kind by
// internal/adapter/carrier (email, CRM) and this package's webhook and Slack
// senders.
type Sender interface {
	Send(ctx context.Context, dest domain.Destination, dossier domain.Dossier) error
}

// Breaker wraps a per-service call so a failing destination doesn't retry
// into a storm. Implemented by internal/adapter/resilience.BreakerRegistry.
type Breaker interface {
	Execute(ctx context.Context, service string, fn func(context.Context) error) error
}

// Deps bundles the Evaluator's collaborators.
type Deps struct {
	Leads     domain.LeadStore
	Convs     domain.ConversationStore
	Campaigns domain.CampaignStore
	Handovers domain.HandoverStore
	Agents    AgentProvider
	Router    ModelRouter
	Marker    Marker
	Breaker   Breaker
	Senders   map[domain.DestinationKind]Sender
	Events    domain.EventBus
	Logger    *slog.Logger

	// DefaultCRMFieldMap backfills a CRM recipient's field mapping when its
	// campaign configuration doesn't specify one.
	DefaultCRMFieldMap map[string]string
}

// Evaluator subscribes to conversation-append events and trips handovers
// against each campaign's HandoverCriteria.
type Evaluator struct {
	leads     domain.LeadStore
	convs     domain.ConversationStore
	campaigns domain.CampaignStore
	handovers domain.HandoverStore
	agents    AgentProvider
	router    ModelRouter
	marker    Marker
	breaker   Breaker
	senders   map[domain.DestinationKind]Sender
	events    domain.EventBus
	logger    *slog.Logger

	defaultCRMFieldMap map[string]string

	// tripping serializes concurrent evaluations of the same conversation so
	// two near-simultaneous appends can't both observe "not yet handed over"
	// and double-dispatch before either writes the HandoverStore guard row.
	tripping sync.Map // conversationID -> *sync.Mutex
}

// New builds an Evaluator; Subscribe wires it onto the event bus and returns
// the unsubscribe function.
func New(d Deps) *Evaluator {
	e := &Evaluator{
		leads:     d.Leads,
		convs:     d.Convs,
		campaigns: d.Campaigns,
		handovers: d.Handovers,
		agents:    d.Agents,
		router:    d.Router,
		marker:    d.Marker,
		breaker:   d.Breaker,
		senders:   d.Senders,
		events:    d.Events,
		logger:    d.Logger,

		defaultCRMFieldMap: d.DefaultCRMFieldMap,
	}
	return e
}

// Subscribe registers the Evaluator's handler for conversation-append events.
// Returns an unsubscribe function.
func (e *Evaluator) Subscribe() func() {
	return e.events.Subscribe(domain.EventConversationAppend, e.onAppend)
}

func (e *Evaluator) onAppend(ctx context.Context, event domain.Event) {
	var payload domain.ConversationEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.ConversationID == "" {
		return
	}
	if err := e.Evaluate(ctx, event.SessionID, payload.ConversationID); err != nil {
		e.logger.Error("handover evaluation failed", "leadId", event.SessionID, "convId", payload.ConversationID, "err", err)
	}
}

func (e *Evaluator) lockConversation(convID string) func() {
	v, _ := e.tripping.LoadOrStore(convID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Evaluate runs the full criteria check for one conversation append and, if
// any criterion trips, dispatches the handover. It is safe to call
// concurrently for different conversations; same-conversation calls
// serialize.
func (e *Evaluator) Evaluate(ctx context.Context, leadID, conversationID string) error {
	unlock := e.lockConversation(conversationID)
	defer unlock()

	already, err := e.handovers.ExistsForConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	lead, err := e.leads.Get(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.Status.IsTerminal() {
		return nil
	}

	conv, err := e.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}

	if lead.CampaignID == "" {
		return nil
	}
	campaign, err := e.campaigns.Get(ctx, lead.CampaignID)
	if err != nil {
		return err
	}
	criteria := campaign.Settings.HandoverCriteria

	agent, err := e.agents.ChannelAgent(conv.Channel)
	if err != nil {
		return nil
	}
	signals, err := agent.EvaluateSignals(ctx, conv)
	if err != nil {
		// No criteria tripped this tick; the next append re-evaluates.
		e.logger.Warn("handover: evaluate signals failed, deferring to next append", "leadId", leadID, "err", err)
		return nil
	}

	trip := tripCriteria(criteria, conv, signals)
	if len(trip.CriteriaTripped) == 0 {
		return nil
	}

	dossier := e.buildDossier(ctx, lead, conv, signals, trip)

	destinations := destinationsFor(criteria.HandoverRecipients, e.defaultCRMFieldMap)
	execution := domain.HandoverExecution{
		ID:             newULID(),
		LeadID:         leadID,
		ConversationID: conversationID,
		Reason:         trip.Reason,
		Dossier:        dossier,
		Destinations:   destinations,
	}

	e.events.Publish(ctx, domain.Event{Type: domain.EventHandoverTripped, Timestamp: time.Now(), SessionID: leadID})

	execution.Attempts = e.dispatchAll(ctx, destinations, dossier)

	if _, err := e.handovers.Create(ctx, execution); err != nil {
		return err
	}

	if !execution.AllSucceeded() {
		e.logger.Warn("handover: one or more destinations failed", "leadId", leadID, "convId", conversationID)
	}
	return e.marker.MarkHandedOver(ctx, leadID, trip.Reason)
}

// dispatchAll fans the dossier out to every destination concurrently,
// ordered by priority only insofar as higher-priority sends are kicked off
// first; a failure on one destination never blocks another (spec.md §4.1
// failure semantics).
func (e *Evaluator) dispatchAll(ctx context.Context, destinations []domain.Destination, dossier domain.Dossier) []domain.Attempt {
	attempts := make([]domain.Attempt, len(destinations))
	var wg sync.WaitGroup
	for i, dest := range destinations {
		wg.Add(1)
		go func(i int, dest domain.Destination) {
			defer wg.Done()
			attempts[i] = e.dispatchOne(ctx, dest, dossier)
		}(i, dest)
	}
	wg.Wait()
	return attempts
}

func (e *Evaluator) dispatchOne(ctx context.Context, dest domain.Destination, dossier domain.Dossier) domain.Attempt {
	attempt := domain.Attempt{Destination: dest, AttemptedAt: time.Now()}

	sender, ok := e.senders[dest.Kind]
	if !ok {
		attempt.Error = fmt.Sprintf("no sender registered for destination kind %q", dest.Kind)
		return attempt
	}

	service := "handover:" + string(dest.Kind)
	err := e.breaker.Execute(ctx, service, func(ctx context.Context) error {
		return sender.Send(ctx, dest, dossier)
	})
	if err != nil {
		attempt.Error = err.Error()
		return attempt
	}
	attempt.Success = true
	return attempt
}

// Confirm records a human system's acknowledgment of a dispatched dossier,
// stamping ConfirmedAt so CheckFollowUps stops flagging it as unanswered.
// Confirming an already-confirmed execution is a no-op.
func (e *Evaluator) Confirm(ctx context.Context, handoverID string) error {
	h, err := e.handovers.Get(ctx, handoverID)
	if err != nil {
		return err
	}
	if h.ConfirmedAt != nil {
		return nil
	}
	now := time.Now()
	h.ConfirmedAt = &now
	return e.handovers.Update(ctx, h)
}

// CheckFollowUps re-examines executions past their FollowUpAt with no
// recorded human confirmation, giving operators a second chance at dossiers
// that went unanswered (spec.md §4.7 "configured follow-up check").
func (e *Evaluator) CheckFollowUps(ctx context.Context, now time.Time) error {
	pending, err := e.handovers.PendingFollowUps(ctx, now.Unix())
	if err != nil {
		return err
	}
	for _, h := range pending {
		if h.ConfirmedAt != nil {
			continue
		}
		e.logger.Warn("handover: no confirmation received by follow-up deadline", "leadId", h.LeadID, "convId", h.ConversationID)
		e.events.Publish(ctx, domain.Event{Type: domain.EventHandoverTripped, Timestamp: now, SessionID: h.LeadID})
	}
	return nil
}

// tripResult is the internal trip-condition evaluation outcome.
type tripResult struct {
	CriteriaTripped []string
	Reason          string
	Score           float64
	Urgency         string
}

// tripCriteria implements spec.md §4.7's five independent conditions: any
// single one tripping is sufficient to trigger a handover.
func tripCriteria(c domain.HandoverCriteria, conv domain.LeadConversation, signals domain.EvaluateSignals) tripResult {
	var tripped []string

	if c.QualificationScoreThreshold > 0 && signals.QualificationScore >= c.QualificationScoreThreshold {
		tripped = append(tripped, "qualification_score")
	}
	if c.ConversationLengthThreshold > 0 && conv.MessageCount() >= c.ConversationLengthThreshold {
		tripped = append(tripped, "conversation_length")
	}
	if c.TimeThresholdSeconds > 0 && conv.ElapsedSince() >= time.Duration(c.TimeThresholdSeconds)*time.Second {
		tripped = append(tripped, "time_elapsed")
	}
	if matchesKeyword(conv, c.KeywordTriggers) {
		tripped = append(tripped, "keyword_trigger")
	}
	if len(c.GoalCompletionRequired) > 0 && goalsComplete(c.GoalCompletionRequired, signals) {
		tripped = append(tripped, "goal_completion")
	}

	urgency := "normal"
	if signals.QualificationScore >= 8 {
		urgency = "high"
	}
	reason := "no criteria tripped"
	if len(tripped) > 0 {
		reason = "tripped: " + strings.Join(tripped, ", ")
	}
	return tripResult{CriteriaTripped: tripped, Reason: reason, Score: signals.QualificationScore, Urgency: urgency}
}

// matchesKeyword reports whether any trigger appears as a whole word
// (case-insensitive) in the conversation's latest inbound message.
func matchesKeyword(conv domain.LeadConversation, triggers []string) bool {
	if len(triggers) == 0 {
		return false
	}
	last, ok := conv.LastInbound()
	if !ok {
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(last.Content), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}
	for _, trigger := range triggers {
		if wordSet[strings.ToLower(trigger)] {
			return true
		}
	}
	return false
}

// goalsComplete reports whether every required goal appears in the channel
// agent's reported buying signals. GoalCompletionRequired entries are
// matched against EvaluateSignals.BuyingSignals; the spec's "completed
// goals" set is this repo's buyingSignals slice, since no separate
// goal-tracking store exists (see DESIGN.md Open Question).
func goalsComplete(required []string, signals domain.EvaluateSignals) bool {
	have := make(map[string]bool, len(signals.BuyingSignals))
	for _, s := range signals.BuyingSignals {
		have[strings.ToLower(s)] = true
	}
	for _, r := range required {
		if !have[strings.ToLower(r)] {
			return false
		}
	}
	return true
}

func destinationsFor(recipients []domain.Recipient, defaultCRMFieldMap map[string]string) []domain.Destination {
	dests := make([]domain.Destination, len(recipients))
	for i, r := range recipients {
		dests[i] = domain.Destination{
			Kind:     domain.DestinationKind(r.Kind),
			Address:  r.Address,
			Priority: r.Priority,
			Secret:   r.Secret,
		}
		if dests[i].Kind == domain.DestinationCRM {
			dests[i].FieldMap = defaultCRMFieldMap
		}
	}
	// Stable priority sort, high first; a plain insertion sort is fine at
	// the small N of configured recipients and keeps equal priorities in
	// their configured order.
	for i := 1; i < len(dests); i++ {
		for j := i; j > 0 && dests[j].Priority > dests[j-1].Priority; j-- {
			dests[j], dests[j-1] = dests[j-1], dests[j]
		}
	}
	return dests
}
