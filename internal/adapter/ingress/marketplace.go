package ingress

import (
	"encoding/xml"
	"errors"
	"net/http"

	"alfred-ai/internal/domain"
)

// postLeadResponse is the partner-marketplace XML envelope (spec.md §6):
// <response><status/><lead_id/><buyer_id/><price/><message/></response>.
type postLeadResponse struct {
	XMLName xml.Name `xml:"response"`
	Status  string   `xml:"status"`
	LeadID  string   `xml:"lead_id,omitempty"`
	BuyerID string   `xml:"buyer_id,omitempty"`
	Price   string   `xml:"price,omitempty"`
	Message string   `xml:"message,omitempty"`
}

// handlePostLead implements the legacy partner-marketplace ingress: a
// form-encoded request answered with an XML envelope. Test_Lead=1 or
// zip=99999 puts the submission in test mode, where the lead is validated
// but never ingested or persisted, and the response carries a freshly
// minted id on every call (spec.md §6). mode=full additionally
// requires an X-API-Key header present in the configured allow-list.
func (s *Server) handlePostLead(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeXML(w, http.StatusBadRequest, postLeadResponse{Status: "rejected", Message: "invalid form body"})
		return
	}

	if r.FormValue("mode") == "full" {
		if !apiKeyAllowed(r.Header.Get("X-API-Key"), s.cfg.MarketplaceValidAPIKeys) {
			writeXML(w, http.StatusUnauthorized, postLeadResponse{Status: "rejected", Message: "invalid or missing X-API-Key"})
			return
		}
	}

	testMode := r.FormValue("Test_Lead") == "1" || r.FormValue("zip") == "99999"

	lead := domain.Lead{
		Name:       r.FormValue("name"),
		Email:      r.FormValue("email"),
		Phone:      domain.NormalizePhone(r.FormValue("phone")),
		Source:     "marketplace",
		CampaignID: r.FormValue("campaign"),
		Metadata:   map[string]string{"zip": r.FormValue("zip")},
	}
	payload := leadPayload{Name: lead.Name, Email: lead.Email, Phone: lead.Phone}
	if err := payload.validate(); err != nil {
		writeXML(w, http.StatusOK, postLeadResponse{Status: "rejected", Message: err.Error()})
		return
	}

	if testMode {
		writeXML(w, http.StatusOK, postLeadResponse{
			Status:  "test",
			LeadID:  newULID(),
			Message: "test lead evaluated, not persisted",
		})
		return
	}

	id, err := s.engine.Ingest(r.Context(), lead)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateLead) {
			writeXML(w, http.StatusOK, postLeadResponse{Status: "duplicate", LeadID: id})
			return
		}
		s.logger.Error("ingress: postLead ingest failed", "err", err)
		writeXML(w, http.StatusOK, postLeadResponse{Status: "rejected", Message: err.Error()})
		return
	}
	writeXML(w, http.StatusOK, postLeadResponse{Status: "accepted", LeadID: id, Price: "0"})
}
