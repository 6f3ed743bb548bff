package ingress

import (
	"encoding/xml"
	"errors"
	"net/http"

	"alfred-ai/internal/domain"
)

type pingResponse struct {
	XMLName xml.Name `xml:"response"`
	Status  string   `xml:"status"`
}

// leadStatusResponse is GET /leadStatus/{id}'s XML body (spec.md §6).
type leadStatusResponse struct {
	XMLName    xml.Name `xml:"response"`
	Status     string   `xml:"status"`
	LeadID     string   `xml:"lead_id"`
	LeadStatus string   `xml:"lead_status,omitempty"`
	Message    string   `xml:"message,omitempty"`
}

func (s *Server) handleLeadStatus(w http.ResponseWriter, r *http.Request) {
	if !apiKeyAllowed(r.Header.Get("X-API-Key"), s.cfg.StatusAPIKeys) {
		writeXML(w, http.StatusUnauthorized, leadStatusResponse{Status: "error", Message: "invalid or missing X-API-Key"})
		return
	}

	id := r.PathValue("id")
	lead, err := s.leads.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeXML(w, http.StatusNotFound, leadStatusResponse{Status: "error", LeadID: id, Message: "lead not found"})
			return
		}
		s.logger.Error("ingress: lead status lookup failed", "err", err)
		writeXML(w, http.StatusInternalServerError, leadStatusResponse{Status: "error", LeadID: id, Message: "lookup failed"})
		return
	}
	writeXML(w, http.StatusOK, leadStatusResponse{Status: "ok", LeadID: lead.ID, LeadStatus: string(lead.Status)})
}
