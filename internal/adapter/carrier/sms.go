package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alfred-ai/internal/domain"
)

// SMSConfig configures the Twilio-shaped SMS carrier
// (spec.md §6 SMS_ACCOUNT_SID/SMS_AUTH_TOKEN/OUTBOUND_PHONE_NUMBER).
type SMSConfig struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string
	APIBaseURL   string // defaults to https://api.twilio.com/2010-04-01
}

// SMSCarrier sends outbound messages over the Twilio REST API, grounded on
// internal/adapter/tool's Twilio voice backend (basic auth, form-encoded
// body, SID-based resource paths).
type SMSCarrier struct {
	cfg    SMSConfig
	client *http.Client
}

// NewSMSCarrier builds an SMSCarrier.
func NewSMSCarrier(cfg SMSConfig) *SMSCarrier {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.twilio.com/2010-04-01"
	}
	return &SMSCarrier{cfg: cfg, client: newPooledClient(15 * time.Second)}
}

type twilioMessageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Send implements engagement.Carrier for domain.ChannelSMS.
func (c *SMSCarrier) Send(ctx context.Context, channel domain.LeadChannel, lead domain.Lead, content string) (string, error) {
	if channel != domain.ChannelSMS {
		return "", fmt.Errorf("sms carrier: unsupported channel %q", channel)
	}
	if lead.Phone == "" {
		return "", fmt.Errorf("sms carrier: lead %s has no phone number", lead.ID)
	}

	apiURL := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.cfg.APIBaseURL, c.cfg.AccountSID)
	form := url.Values{
		"To":   {lead.Phone},
		"From": {c.cfg.FromNumber},
		"Body": {content},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("sms carrier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.NewSubSystemError("carrier.sms", "SMSCarrier.Send", domain.ErrCarrierTransient, err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", domain.NewSubSystemError("carrier.sms", "SMSCarrier.Send", domain.ErrCarrierTransient,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)))
	}

	var parsed twilioMessageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("sms carrier: parse response: %w", err)
	}
	return parsed.SID, nil
}
