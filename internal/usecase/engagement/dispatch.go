package engagement

import (
	"context"
	"errors"

	"alfred-ai/internal/domain"
)

// Carrier sends a composed message on a channel and returns the carrier's
// external message id. Implemented by internal/adapter/carrier.
type Carrier interface {
	Send(ctx context.Context, channel domain.LeadChannel, lead domain.Lead, content string) (externalID string, err error)
}

// ProcessDispatchJob is invoked by a Job Queue worker for
// JobDispatchInitial/JobDispatchTouch/JobDispatchReply jobs: it composes the
// outbound message via the channel agent, dispatches it through the carrier
// idempotently, and advances the conversation to awaiting_reply
// (spec.md §4.1 "Sending -> AwaitingReply").
func (e *Engine) ProcessDispatchJob(ctx context.Context, job domain.Job, carrier Carrier) error {
	return e.withLease(ctx, job.LeadID, func(ctx context.Context) error {
		return e.dispatch(ctx, job, carrier)
	})
}

func (e *Engine) dispatch(ctx context.Context, job domain.Job, carrier Carrier) error {
	lead, err := e.leads.Get(ctx, job.LeadID)
	if err != nil {
		return err
	}
	conv, err := e.resolveDispatchConversation(ctx, job)
	if err != nil {
		return err
	}

	if existing, found, err := e.comms.FindByIdempotencyKey(ctx, job.IdempotencyKey); err != nil {
		return err
	} else if found && existing.Status != domain.CommFailed {
		// Already dispatched under this key; nothing further to do.
		return nil
	}

	var campaign domain.Campaign
	if lead.CampaignID != "" {
		campaign, err = e.campaigns.Get(ctx, lead.CampaignID)
		if err != nil {
			return err
		}
	}

	agent, err := e.agents.ChannelAgent(conv.Channel)
	if err != nil {
		return domain.NewSubSystemError("engagement", "Engine.dispatch", domain.ErrModelPermanent, err.Error())
	}

	var content string
	switch job.Type {
	case domain.JobDispatchReply:
		content, err = agent.ComposeReply(ctx, lead, conv, campaign)
	default:
		content, err = agent.ComposeInitial(ctx, lead, conv, campaign)
	}
	if errors.Is(err, domain.ErrCannotContinue) {
		return e.closeOnOptOut(ctx, lead.ID, conv)
	}
	if err != nil {
		return domain.NewSubSystemError("engagement", "Engine.dispatch", domain.ErrModelTransient, err.Error())
	}

	comm, err := e.comms.Create(ctx, domain.Communication{
		ID:             newULID(),
		LeadID:         lead.ID,
		ConversationID: conv.ID,
		Channel:        conv.Channel,
		Status:         domain.CommQueued,
		IdempotencyKey: job.IdempotencyKey,
	})
	if err != nil {
		return err
	}

	externalID, err := carrier.Send(ctx, conv.Channel, lead, content)
	if err != nil {
		_ = e.comms.UpdateStatus(ctx, comm.ID, domain.CommFailed, "")
		e.publish(ctx, domain.EventCommunicationFailed, lead.ID, nil)
		return domain.NewSubSystemError("engagement", "Engine.dispatch", domain.ErrCarrierTransient, err.Error())
	}
	if err := e.comms.UpdateStatus(ctx, comm.ID, domain.CommSent, externalID); err != nil {
		return err
	}
	e.publish(ctx, domain.EventCommunicationSent, lead.ID, nil)

	conv.Append(domain.EngagementMessage{
		Direction:  domain.DirectionOutbound,
		Content:    content,
		ExternalID: externalID,
	})
	conv.Status = domain.ConvAwaitingReply
	if _, err := e.convs.CompareAndSwap(ctx, conv); err != nil {
		return err
	}
	e.publishConv(ctx, domain.EventConversationAppend, lead.ID, conv.ID)
	return nil
}

// resolveDispatchConversation loads the conversation a dispatch job targets.
// dispatch_initial and dispatch_reply jobs carry the conversation id directly
// in Payload; dispatch_touch jobs (fired by the Touch Sequence Scheduler,
// which tracks only leadID/campaignID/stepIndex) leave Payload empty and
// resume the lead's most recent awaiting_reply conversation.
func (e *Engine) resolveDispatchConversation(ctx context.Context, job domain.Job) (domain.LeadConversation, error) {
	if len(job.Payload) > 0 {
		return e.convs.Get(ctx, string(job.Payload))
	}
	conv, found, err := e.convs.MostRecentAwaitingReply(ctx, job.LeadID)
	if err != nil {
		return domain.LeadConversation{}, err
	}
	if !found {
		return domain.LeadConversation{}, domain.NewDomainError("Engine.resolveDispatchConversation", domain.ErrNotFound, job.LeadID)
	}
	return conv, nil
}

// closeOnOptOut implements spec.md §4.3's agent-refusal contract: when a
// channel agent declines to continue, the engine closes the conversation
// with reason opt_out rather than retrying the job.
func (e *Engine) closeOnOptOut(ctx context.Context, leadID string, conv domain.LeadConversation) error {
	conv.Status = domain.ConvClosed
	conv.CloseReason = domain.CloseReasonOptOut
	if _, err := e.convs.CompareAndSwap(ctx, conv); err != nil {
		return err
	}
	e.publishConv(ctx, domain.EventConversationClosed, leadID, conv.ID)
	if err := e.touches.CancelSequence(ctx, leadID, ""); err != nil {
		e.logger.Error("failed to cancel touch sequence on opt-out", "leadId", leadID, "err", err)
	}
	e.publish(ctx, domain.EventTouchCanceled, leadID, nil)
	return nil
}
