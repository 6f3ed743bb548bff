package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"alfred-ai/internal/domain"
)

// HandoverEmailSender delivers a Dossier as a formatted email to a human
// recipient, reusing EmailConfig's transactional-email endpoint but
// implementing handover.Sender rather than engagement.Carrier: the message
// body is the Dossier's narrative, not a channel-agent-composed reply.
type HandoverEmailSender struct {
	cfg    EmailConfig
	client *http.Client
}

// NewHandoverEmailSender builds a HandoverEmailSender.
func NewHandoverEmailSender(cfg EmailConfig) *HandoverEmailSender {
	return &HandoverEmailSender{cfg: cfg, client: newPooledClient(15 * time.Second)}
}

// Send implements handover.Sender. dest.Address is the recipient's email.
func (s *HandoverEmailSender) Send(ctx context.Context, dest domain.Destination, dossier domain.Dossier) error {
	html := fmt.Sprintf(
		"<h2>Handover: %s</h2><p>%s</p><p><b>Buyer type:</b> %s</p><p><b>Approach:</b> %s</p><p><b>Timeline:</b> %s</p><p><b>Trigger:</b> %s (score %.2f, %s urgency)</p>",
		dossier.LeadSnapshot.Name, dossier.Context, dossier.ProfileAnalysis.BuyerType,
		dossier.RecommendedActions.Approach, dossier.RecommendedActions.Timeline,
		dossier.Trigger.Reason, dossier.Trigger.Score, dossier.Trigger.Urgency,
	)

	body, err := json.Marshal(emailSendRequest{
		To:      dest.Address,
		From:    s.cfg.FromEmail,
		Subject: fmt.Sprintf("Lead handover: %s", dossier.LeadSnapshot.Name),
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("handover email sender: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("handover email sender: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.NewSubSystemError("carrier.handoverEmail", "HandoverEmailSender.Send", domain.ErrCarrierTransient, err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return domain.NewSubSystemError("carrier.handoverEmail", "HandoverEmailSender.Send", domain.ErrCarrierTransient,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody)))
	}
	return nil
}
