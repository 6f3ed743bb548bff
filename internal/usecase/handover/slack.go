package handover

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"alfred-ai/internal/domain"
)

// SlackSender delivers a Dossier as a formatted message to a Slack channel,
// grounded on internal/adapter/channel's Slack client usage
// (slack.New/PostMessage). A SPEC_FULL.md supplement to spec.md's
// email/webhook/CRM destination set.
type SlackSender struct {
	api *slack.Client
}

// NewSlackSender builds a SlackSender bound to a bot token.
func NewSlackSender(botToken string) *SlackSender {
	return &SlackSender{api: slack.New(botToken)}
}

// Send implements handover.Sender. dest.Address is the target Slack channel
// id or name.
func (s *SlackSender) Send(ctx context.Context, dest domain.Destination, dossier domain.Dossier) error {
	text := fmt.Sprintf(
		"*Handover: %s*\n%s\n\n*Profile:* %s\n*Recommended approach:* %s\n*Timeline:* %s\n*Trigger:* %s (score %.2f, %s urgency)",
		dossier.LeadSnapshot.Name,
		dossier.Context,
		dossier.ProfileAnalysis.BuyerType,
		dossier.RecommendedActions.Approach,
		dossier.RecommendedActions.Timeline,
		dossier.Trigger.Reason,
		dossier.Trigger.Score,
		dossier.Trigger.Urgency,
	)
	_, _, err := s.api.PostMessageContext(ctx, dest.Address, slack.MsgOptionText(text, false))
	if err != nil {
		return domain.NewSubSystemError("handover.slack", "SlackSender.Send", domain.ErrCarrierTransient, err.Error())
	}
	return nil
}
