package engagement

import (
	"context"

	"alfred-ai/internal/domain"
)

// InboundMessage is a channel-normalized inbound reply handed to the Engine
// by an adapter (IMAP scanner, carrier webhook, chat transport).
type InboundMessage struct {
	Channel     domain.LeadChannel
	FromAddress string
	Content     string
	ExternalID  string
	// InReplyTo is the carrier's reference to the message being replied to
	// (e.g. the email In-Reply-To header), used to break ties when more than
	// one awaiting_reply conversation matches FromAddress (spec.md §4.6).
	InReplyTo string
	RawPayload string
}

// HandleReply resolves an inbound message to its Lead and Conversation,
// appends it, and advances the state machine (spec.md §4.1
// "AwaitingReply -> Responding", §4.6 reply matching). Replies that cannot be
// matched to any lead are recorded as orphans rather than dropped.
func (e *Engine) HandleReply(ctx context.Context, msg InboundMessage) error {
	lead, conv, found, err := e.resolveReply(ctx, msg)
	if err != nil {
		return err
	}
	if !found {
		e.publish(ctx, domain.EventOrphanReply, "", nil)
		reason := "no matching lead for " + string(msg.Channel) + " sender"
		if err := e.orphans.Create(ctx, domain.OrphanReply{
			ID:          newULID(),
			Channel:     msg.Channel,
			FromAddress: msg.FromAddress,
			RawPayload:  msg.RawPayload,
			Reason:      reason,
		}); err != nil {
			return err
		}
		return domain.NewDomainError("Engine.HandleReply", domain.ErrOrphanReply, msg.FromAddress)
	}

	return e.withLease(ctx, lead.ID, func(ctx context.Context) error {
		return e.appendReply(ctx, lead, conv, msg)
	})
}

// resolveReply implements spec.md §4.6's per-channel matching rules: email by
// sender address against the most recent awaiting_reply conversation (tied
// matches broken by InReplyTo), sms by E.164-normalized phone against the
// lead's most recent awaiting_reply conversation, which must be on sms.
func (e *Engine) resolveReply(ctx context.Context, msg InboundMessage) (domain.Lead, domain.LeadConversation, bool, error) {
	var candidates []domain.Lead
	var err error
	switch msg.Channel {
	case domain.ChannelEmail:
		candidates, err = e.leads.FindByEmail(ctx, msg.FromAddress)
	case domain.ChannelSMS:
		candidates, err = e.leads.FindByPhone(ctx, msg.FromAddress)
	default:
		candidates, err = e.leads.FindByEmail(ctx, msg.FromAddress)
	}
	if err != nil {
		return domain.Lead{}, domain.LeadConversation{}, false, err
	}

	for _, lead := range candidates {
		conv, found, err := e.convs.MostRecentAwaitingReply(ctx, lead.ID)
		if err != nil {
			return domain.Lead{}, domain.LeadConversation{}, false, err
		}
		if !found || conv.Channel != msg.Channel {
			continue
		}
		if msg.InReplyTo != "" {
			matchesRef := false
			for _, m := range conv.Messages {
				if m.ExternalID == msg.InReplyTo {
					matchesRef = true
					break
				}
			}
			if !matchesRef {
				continue
			}
		}
		return lead, conv, true, nil
	}
	return domain.Lead{}, domain.LeadConversation{}, false, nil
}

func (e *Engine) appendReply(ctx context.Context, lead domain.Lead, conv domain.LeadConversation, msg InboundMessage) error {
	conv.Append(domain.EngagementMessage{
		Direction:  domain.DirectionInbound,
		Content:    msg.Content,
		ExternalID: msg.ExternalID,
	})
	conv.Status = domain.ConvReplied
	conv, err := e.convs.CompareAndSwap(ctx, conv)
	if err != nil {
		return err
	}
	e.publishConv(ctx, domain.EventConversationAppend, lead.ID, conv.ID)

	if lead.Status.CanTransition(domain.LeadEngaged) {
		if _, err := e.transition(ctx, lead, domain.LeadEngaged); err != nil {
			return err
		}
	}

	cancelTouches := true
	if lead.CampaignID != "" {
		if campaign, err := e.campaigns.Get(ctx, lead.CampaignID); err == nil && campaign.ConversationMode == domain.ModeTemplateOnly {
			cancelTouches = false
		}
	}
	if cancelTouches {
		if err := e.touches.CancelSequence(ctx, lead.ID, lead.CampaignID); err != nil {
			e.logger.Error("failed to cancel touch sequence on reply", "leadId", lead.ID, "err", err)
		}
		e.publish(ctx, domain.EventTouchCanceled, lead.ID, nil)
	}

	return e.jobs.Enqueue(ctx, domain.Job{
		ID:             newULID(),
		Type:           domain.JobDispatchReply,
		LeadID:         lead.ID,
		IdempotencyKey: domain.ReplyIdempotencyKey(lead.ID, conv.ID, msg.ExternalID),
		Backoff:        domain.DefaultAgentBackoff,
		MaxAttempts:    domain.DefaultAgentBackoff.MaxAttempts,
		Payload:        []byte(conv.ID),
	})
}
