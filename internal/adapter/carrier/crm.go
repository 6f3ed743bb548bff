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

// CRMConfig configures the generic CRM handover sink: a bearer-authenticated
// webhook-shaped endpoint that accepts an arbitrary field-mapped record.
type CRMConfig struct {
	APIKey string
}

// CRMSender posts a Dossier to a CRM's lead-import endpoint, remapping field
// names through the Destination's FieldMap so each CRM's schema doesn't leak
// into the Dossier shape itself.
type CRMSender struct {
	cfg    CRMConfig
	client *http.Client
}

// NewCRMSender builds a CRMSender.
func NewCRMSender(cfg CRMConfig) *CRMSender {
	return &CRMSender{cfg: cfg, client: newPooledClient(15 * time.Second)}
}

// Send implements handover.Sender. dest.Address is the CRM's import URL;
// dest.FieldMap maps Dossier field names onto the CRM's expected keys,
// unmapped fields pass through unchanged.
func (c *CRMSender) Send(ctx context.Context, dest domain.Destination, dossier domain.Dossier) error {
	record := map[string]any{
		"leadName":      dossier.LeadSnapshot.Name,
		"leadContact":   dossier.LeadSnapshot.Contact,
		"context":       dossier.Context,
		"buyerType":     dossier.ProfileAnalysis.BuyerType,
		"approach":      dossier.RecommendedActions.Approach,
		"timeline":      dossier.RecommendedActions.Timeline,
		"triggerReason": dossier.Trigger.Reason,
		"triggerScore":  dossier.Trigger.Score,
	}
	remapped := make(map[string]any, len(record))
	for k, v := range record {
		if mapped, ok := dest.FieldMap[k]; ok {
			remapped[mapped] = v
			continue
		}
		remapped[k] = v
	}

	body, err := json.Marshal(remapped)
	if err != nil {
		return fmt.Errorf("crm sender: marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.Address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("crm sender: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewSubSystemError("carrier.crm", "CRMSender.Send", domain.ErrCarrierTransient, err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return domain.NewSubSystemError("carrier.crm", "CRMSender.Send", domain.ErrCarrierTransient,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody)))
	}
	return nil
}
