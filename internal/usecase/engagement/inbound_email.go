package engagement

import (
	"context"

	"alfred-ai/internal/domain"
)

// IngestInboundEmail implements spec.md §4.6's IMAP path: an email matched by
// a scanner rule starts a brand new conversation rather than replying to one
// already awaiting_reply. Callers (internal/adapter/inbound/imapscanner) are
// responsible for resolving/creating the Lead and applying any
// assignCampaign/setPriority/addTags rule actions before calling this; the
// Engine only owns the conversation bookkeeping and reply-dispatch job.
func (e *Engine) IngestInboundEmail(ctx context.Context, lead domain.Lead, msg InboundMessage) (string, error) {
	var convID string
	err := e.withLease(ctx, lead.ID, func(ctx context.Context) error {
		conv, err := e.convs.Create(ctx, domain.LeadConversation{
			ID:      newULID(),
			LeadID:  lead.ID,
			Channel: domain.ChannelEmail,
			Status:  domain.ConvActive,
		})
		if err != nil {
			return err
		}

		conv.Append(domain.EngagementMessage{
			Direction:  domain.DirectionInbound,
			Content:    msg.Content,
			ExternalID: msg.ExternalID,
		})
		conv.Status = domain.ConvReplied
		conv, err = e.convs.CompareAndSwap(ctx, conv)
		if err != nil {
			return err
		}
		convID = conv.ID
		e.publishConv(ctx, domain.EventConversationAppend, lead.ID, conv.ID)

		if lead.Status.CanTransition(domain.LeadContacted) {
			if _, err := e.transition(ctx, lead, domain.LeadContacted); err != nil {
				return err
			}
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
	})
	return convID, err
}
