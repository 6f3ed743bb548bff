package engagement

import (
	"context"
	"time"

	"alfred-ai/internal/domain"
)

// QuiescenceWindow is how long after its last message a conversation may sit
// in awaiting_reply before Tick closes it as quiescent (spec.md §4.1
// "AwaitingReply -> Completed on quiescence"). Whether touch-sequence steps
// are still pending is not checked.
const QuiescenceWindow = 72 * time.Hour

// Tick applies time-based transitions for one lead: an awaiting_reply
// conversation quiet past QuiescenceWindow is closed with reason quiescent
// and the lead is marked completed, closing the engagement loop even without
// an explicit handover. Nothing in the runtime calls Tick on a schedule; it
// runs only when a caller invokes it for a lead.
func (e *Engine) Tick(ctx context.Context, leadID string) error {
	return e.withLease(ctx, leadID, func(ctx context.Context) error {
		return e.tick(ctx, leadID)
	})
}

func (e *Engine) tick(ctx context.Context, leadID string) error {
	lead, err := e.leads.Get(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.Status.IsTerminal() {
		return nil
	}

	conv, found, err := e.convs.MostRecentAwaitingReply(ctx, leadID)
	if !found || err != nil {
		return err
	}
	if time.Since(conv.Messages[len(conv.Messages)-1].Timestamp) < QuiescenceWindow {
		return nil
	}

	conv.Status = domain.ConvClosed
	conv.CloseReason = domain.CloseReasonQuiescent
	if _, err := e.convs.CompareAndSwap(ctx, conv); err != nil {
		return err
	}
	e.publishConv(ctx, domain.EventConversationClosed, leadID, conv.ID)

	if !lead.Status.CanTransition(domain.LeadCompleted) {
		return nil
	}
	_, err = e.transition(ctx, lead, domain.LeadCompleted)
	return err
}

// MarkHandedOver transitions a lead to handed_over once the Handover
// Evaluator has tripped and dispatched its fan-out (spec.md §4.5, §6).
func (e *Engine) MarkHandedOver(ctx context.Context, leadID, reason string) error {
	return e.withLease(ctx, leadID, func(ctx context.Context) error {
		lead, err := e.leads.Get(ctx, leadID)
		if err != nil {
			return err
		}
		if lead.Metadata == nil {
			lead.Metadata = make(map[string]string)
		}
		lead.Metadata["handover_reason"] = reason
		if _, err := e.transition(ctx, lead, domain.LeadHandedOver); err != nil {
			return err
		}
		e.publish(ctx, domain.EventHandoverDispatched, leadID, nil)
		return nil
	})
}
