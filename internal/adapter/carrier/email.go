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

// EmailConfig configures the transactional email carrier
// (spec.md §6 EMAIL_API_KEY/EMAIL_DOMAIN/FROM_EMAIL).
type EmailConfig struct {
	APIURL    string // provider send endpoint
	APIKey    string
	Domain    string
	FromEmail string
}

// EmailCarrier sends outbound messages over a transactional email API.
// Shaped after other_examples/'s HTTP-JSON transactional-sender convention:
// a bearer-authenticated POST with a flat {to, from, subject, html} body.
type EmailCarrier struct {
	cfg    EmailConfig
	client *http.Client
}

// NewEmailCarrier builds an EmailCarrier.
func NewEmailCarrier(cfg EmailConfig) *EmailCarrier {
	return &EmailCarrier{cfg: cfg, client: newPooledClient(15 * time.Second)}
}

type emailSendRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type emailSendResponse struct {
	ID string `json:"id"`
}

// Send implements engagement.Carrier for domain.ChannelEmail.
func (c *EmailCarrier) Send(ctx context.Context, channel domain.LeadChannel, lead domain.Lead, content string) (string, error) {
	if channel != domain.ChannelEmail {
		return "", fmt.Errorf("email carrier: unsupported channel %q", channel)
	}
	if lead.Email == "" {
		return "", fmt.Errorf("email carrier: lead %s has no email address", lead.ID)
	}

	body, err := json.Marshal(emailSendRequest{
		To:      lead.Email,
		From:    c.cfg.FromEmail,
		Subject: "Following up",
		HTML:    content,
	})
	if err != nil {
		return "", fmt.Errorf("email carrier: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("email carrier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.NewSubSystemError("carrier.email", "EmailCarrier.Send", domain.ErrCarrierTransient, err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", domain.NewSubSystemError("carrier.email", "EmailCarrier.Send", domain.ErrCarrierTransient,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed emailSendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("email carrier: parse response: %w", err)
	}
	return parsed.ID, nil
}
