package engagement

import (
	"context"
	"errors"

	"alfred-ai/internal/domain"
)

// Ingest places a lead into the Received state and, if contactable, runs the
// Overlord's routing decision and enqueues its initial dispatch job.
// Idempotent on (source, source_external_id) per spec.md §4.1.
func (e *Engine) Ingest(ctx context.Context, lead domain.Lead) (string, error) {
	if existing, found, err := e.leads.FindByDedupeKey(ctx, lead.DedupeKey()); err != nil {
		return "", err
	} else if found {
		return existing.ID, domain.NewDomainError("Engine.Ingest", domain.ErrDuplicateLead, existing.ID)
	}

	lead.ID = newULID()
	lead.Status = domain.LeadNew
	created, err := e.leads.Create(ctx, lead)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return "", domain.NewDomainError("Engine.Ingest", domain.ErrDuplicateLead, lead.DedupeKey())
		}
		return "", err
	}
	e.publish(ctx, domain.EventLeadIngested, created.ID, nil)

	if !created.Contactable() {
		if _, err := e.archive(ctx, created, "no_contact"); err != nil {
			return created.ID, err
		}
		return created.ID, nil
	}

	err = e.withLease(ctx, created.ID, func(ctx context.Context) error {
		return e.route(ctx, created)
	})
	return created.ID, err
}

// route runs the Overlord's channel-assignment decision and enqueues the
// lead's initial dispatch (spec.md §4.1 "Routing -> Sending").
func (e *Engine) route(ctx context.Context, lead domain.Lead) error {
	var campaign domain.Campaign
	if lead.CampaignID != "" {
		c, err := e.campaigns.Get(ctx, lead.CampaignID)
		if err != nil {
			return err
		}
		campaign = c
	}

	decision, err := e.overlord.Route(ctx, lead, campaign)
	if err != nil {
		decision = e.fallbackDecision(lead, campaign)
	}
	e.recordDecision(ctx, lead.ID, domain.AgentOverlord, string(decision.Action), decision.Reasoning, decision)

	switch decision.Action {
	case domain.ActionSkip, domain.ActionManualReview:
		_, err := e.archive(ctx, lead, "no_channel")
		return err
	}

	channel := decision.Channel
	if channel == "" || !lead.HasChannel(channel) {
		channel, err = e.defaultChannel(lead)
		if err != nil {
			_, archErr := e.archive(ctx, lead, "no_channel")
			if archErr != nil {
				return archErr
			}
			return nil
		}
	}

	conv, err := e.convs.Create(ctx, domain.LeadConversation{
		ID:      newULID(),
		LeadID:  lead.ID,
		Channel: channel,
		Status:  domain.ConvActive,
	})
	if err != nil {
		return err
	}

	if _, err := e.transition(ctx, lead, domain.LeadContacted); err != nil {
		return err
	}

	return e.jobs.Enqueue(ctx, domain.Job{
		ID:             newULID(),
		Type:           domain.JobDispatchInitial,
		LeadID:         lead.ID,
		IdempotencyKey: domain.TouchIdempotencyKey(lead.ID, conv.ID, 0),
		Backoff:        domain.DefaultDispatchBackoff,
		MaxAttempts:    domain.DefaultDispatchBackoff.MaxAttempts,
		Payload:        []byte(conv.ID),
	})
}

// fallbackDecision implements the deterministic rule spec.md §4.2 uses when
// model inference is unavailable: primary preference if contactable, else
// the first contactable fallback, else the lead's default channel (email,
// then sms), else manual_review.
func (e *Engine) fallbackDecision(lead domain.Lead, campaign domain.Campaign) domain.OverlordDecision {
	prefs := campaign.Settings.ChannelPreferences
	if prefs.Primary != "" && lead.HasChannel(prefs.Primary) {
		return domain.OverlordDecision{Action: domain.ActionAssignChannel, Channel: prefs.Primary, Reasoning: "router fallback: primary preference"}
	}
	for _, ch := range prefs.Fallback {
		if lead.HasChannel(ch) {
			return domain.OverlordDecision{Action: domain.ActionAssignChannel, Channel: ch, Reasoning: "router fallback: channel preference fallback"}
		}
	}
	if ch, err := e.defaultChannel(lead); err == nil {
		return domain.OverlordDecision{Action: domain.ActionAssignChannel, Channel: ch, Reasoning: "router fallback: default contactable channel"}
	}
	return domain.OverlordDecision{Action: domain.ActionManualReview, Reasoning: "router fallback: no usable channel"}
}

// defaultChannel implements spec.md §4.1's "channel defaults to email if
// email present else sms if phone present" rule.
func (e *Engine) defaultChannel(lead domain.Lead) (domain.LeadChannel, error) {
	if lead.Email != "" {
		return domain.ChannelEmail, nil
	}
	if lead.Phone != "" {
		return domain.ChannelSMS, nil
	}
	return "", domain.NewDomainError("Engine.defaultChannel", domain.ErrNoContact, lead.ID)
}
