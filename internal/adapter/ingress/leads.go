package ingress

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"alfred-ai/internal/domain"
)

const maxLeadBody = 1 << 20 // 1MB, matches adapter/inbound's webhook body cap

// leadPayload is the JSON shape of POST /leads (spec.md §6).
type leadPayload struct {
	Name     string            `json:"name"`
	Email    string            `json:"email,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Source   string            `json:"source,omitempty"`
	Campaign string            `json:"campaign,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (p leadPayload) toLead() domain.Lead {
	meta := p.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return domain.Lead{
		Name:       p.Name,
		Email:      p.Email,
		Phone:      domain.NormalizePhone(p.Phone),
		Source:     p.Source,
		CampaignID: p.Campaign,
		Metadata:   meta,
	}
}

func (p leadPayload) validate() error {
	if p.Name == "" {
		return domain.NewDomainError("ingress.leads", domain.ErrValidation, "name is required")
	}
	if p.Email == "" && p.Phone == "" {
		return domain.NewDomainError("ingress.leads", domain.ErrValidation, "at least one of email or phone is required")
	}
	return nil
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, domain.NewDomainError("ingress.leads", domain.ErrValidation, "body too large"), "")
		return
	}

	var payload leadPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, domain.NewDomainError("ingress.leads", domain.ErrValidation, "invalid JSON"), "")
		return
	}
	if err := payload.validate(); err != nil {
		writeError(w, err, "")
		return
	}

	id, err := s.engine.Ingest(r.Context(), payload.toLead())
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateLead) {
			writeJSON(w, http.StatusOK, map[string]string{"leadId": id})
			return
		}
		s.logger.Error("ingress: create lead failed", "err", err)
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"leadId": id})
}

// bulkRequest is POST /leads/bulk's body: an already-parsed array of raw
// lead rows plus a csvField -> domainField mapping descriptor (spec.md §6).
type bulkRequest struct {
	Leads   []map[string]string `json:"leads"`
	Mapping map[string]string   `json:"mapping"`
}

type bulkRejection struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type bulkResponse struct {
	Total    int             `json:"total"`
	Accepted int             `json:"accepted"`
	Rejected []bulkRejection `json:"rejected"`
}

func (s *Server) handleBulkLeads(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, domain.NewDomainError("ingress.leadsBulk", domain.ErrValidation, "body too large"), "")
		return
	}

	var req bulkRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, domain.NewDomainError("ingress.leadsBulk", domain.ErrValidation, "invalid JSON"), "")
		return
	}

	resp := bulkResponse{Total: len(req.Leads)}
	for i, row := range req.Leads {
		lead, verr := mapBulkRow(row, req.Mapping)
		if verr != nil {
			resp.Rejected = append(resp.Rejected, bulkRejection{Row: i, Reason: verr.Error()})
			continue
		}
		if _, err := s.engine.Ingest(r.Context(), lead); err != nil && !errors.Is(err, domain.ErrDuplicateLead) {
			resp.Rejected = append(resp.Rejected, bulkRejection{Row: i, Reason: err.Error()})
			continue
		}
		resp.Accepted++
	}
	writeJSON(w, http.StatusOK, resp)
}

// mapBulkRow applies the csvField -> domainField mapping descriptor to a raw
// row and builds a domain.Lead, leaving unmapped columns in Metadata.
func mapBulkRow(row map[string]string, mapping map[string]string) (domain.Lead, error) {
	lead := domain.Lead{Metadata: map[string]string{}}
	mapped := make(map[string]bool, len(mapping))

	for csvField, domainField := range mapping {
		v, ok := row[csvField]
		if !ok {
			continue
		}
		mapped[csvField] = true
		switch domainField {
		case "name":
			lead.Name = v
		case "email":
			lead.Email = v
		case "phone":
			lead.Phone = domain.NormalizePhone(v)
		case "source":
			lead.Source = v
		case "campaign":
			lead.CampaignID = v
		default:
			lead.Metadata[domainField] = v
		}
	}
	for csvField, v := range row {
		if !mapped[csvField] {
			lead.Metadata[csvField] = v
		}
	}

	if lead.Name == "" {
		return domain.Lead{}, errMissingName
	}
	if lead.Email == "" && lead.Phone == "" {
		return domain.Lead{}, errMissingContact
	}
	return lead, nil
}

var (
	errMissingName    = domain.NewDomainError("ingress.leadsBulk", domain.ErrValidation, "name is required")
	errMissingContact = domain.NewDomainError("ingress.leadsBulk", domain.ErrValidation, "at least one of email or phone is required")
)

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLeadBody)
	return io.ReadAll(r.Body)
}
