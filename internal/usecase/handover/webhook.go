package handover

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"alfred-ai/internal/adapter/resilience"
	"alfred-ai/internal/domain"
)

// WebhookSender delivers a Dossier as a signed JSON POST to a
// domain.DestinationWebhook address, dialing exclusively through the
// SSRF-safe transport (internal/adapter/resilience).
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender builds a WebhookSender. timeout bounds one delivery
// attempt; the circuit breaker wrapping Send handles repeated failure.
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{client: &http.Client{Transport: resilience.NewSSRFSafeTransport(), Timeout: timeout}}
}

// Send implements handover.Sender.
func (w *WebhookSender) Send(ctx context.Context, dest domain.Destination, dossier domain.Dossier) error {
	if err := resilience.ValidateWebhookURL(dest.Address); err != nil {
		return err
	}

	body, err := json.Marshal(dossier)
	if err != nil {
		return fmt.Errorf("handover webhook: marshal dossier: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.Address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("handover webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if dest.Secret != "" {
		req.Header.Set("X-Handover-Signature", sign(dest.Secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("handover webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("handover webhook: destination returned %s", resp.Status)
	}
	return nil
}

// sign computes an HMAC-SHA256 signature over body, hex-encoded, matching
// the carrier package's inbound webhook verification scheme so a single
// convention covers both directions.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
