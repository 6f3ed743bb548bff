package ingress

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"alfred-ai/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeIngester struct {
	nextID      string
	duplicateOf string
	err         error
	received    []domain.Lead
}

func (f *fakeIngester) Ingest(_ context.Context, lead domain.Lead) (string, error) {
	f.received = append(f.received, lead)
	if f.duplicateOf != "" {
		return f.duplicateOf, domain.NewDomainError("Engine.Ingest", domain.ErrDuplicateLead, f.duplicateOf)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.nextID, nil
}

type fakeLeadReader struct {
	byID map[string]domain.Lead
}

func (f *fakeLeadReader) Get(_ context.Context, id string) (domain.Lead, error) {
	l, ok := f.byID[id]
	if !ok {
		return domain.Lead{}, domain.NewDomainError("LeadStore.Get", domain.ErrNotFound, id)
	}
	return l, nil
}

func newTestServer(ing *fakeIngester, leads *fakeLeadReader) *Server {
	return NewServer(Config{}, ing, leads, discardLogger())
}

func TestHandleCreateLeadReturns201OnNewLead(t *testing.T) {
	ing := &fakeIngester{nextID: "lead-1"}
	s := newTestServer(ing, &fakeLeadReader{})

	body := `{"name":"Ada","email":"ada@example.com","source":"web_form"}`
	req := httptest.NewRequest(http.MethodPost, "/leads", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleCreateLead(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["leadId"] != "lead-1" {
		t.Fatalf("leadId = %q, want lead-1", resp["leadId"])
	}
	if len(ing.received) != 1 || ing.received[0].Email != "ada@example.com" {
		t.Fatalf("unexpected ingested lead: %+v", ing.received)
	}
}

func TestHandleCreateLeadReturns200OnDuplicate(t *testing.T) {
	ing := &fakeIngester{duplicateOf: "lead-existing"}
	s := newTestServer(ing, &fakeLeadReader{})

	body := `{"name":"Ada","email":"ada@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/leads", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleCreateLead(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["leadId"] != "lead-existing" {
		t.Fatalf("leadId = %q, want lead-existing", resp["leadId"])
	}
}

func TestHandleCreateLeadRejectsMissingContact(t *testing.T) {
	ing := &fakeIngester{nextID: "lead-1"}
	s := newTestServer(ing, &fakeLeadReader{})

	body := `{"name":"Ada"}`
	req := httptest.NewRequest(http.MethodPost, "/leads", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleCreateLead(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(ing.received) != 0 {
		t.Fatal("expected Ingest not to be called for an invalid lead")
	}
}

func TestHandleBulkLeadsMapsAndReportsRejections(t *testing.T) {
	ing := &fakeIngester{nextID: "lead-1"}
	s := newTestServer(ing, &fakeLeadReader{})

	body := `{
		"mapping": {"Full Name": "name", "E-mail": "email"},
		"leads": [
			{"Full Name": "Ada", "E-mail": "ada@example.com"},
			{"Full Name": "NoContact"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/leads/bulk", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleBulkLeads(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp bulkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 2 || resp.Accepted != 1 || len(resp.Rejected) != 1 {
		t.Fatalf("unexpected bulk response: %+v", resp)
	}
	if resp.Rejected[0].Row != 1 {
		t.Fatalf("rejected row = %d, want 1", resp.Rejected[0].Row)
	}
}

func TestHandleLeadStatusRequiresAPIKey(t *testing.T) {
	s := NewServer(Config{StatusAPIKeys: []string{"secret"}}, &fakeIngester{}, &fakeLeadReader{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/leadStatus/lead-1", nil)
	req.SetPathValue("id", "lead-1")
	w := httptest.NewRecorder()

	s.handleLeadStatus(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestHandleLeadStatusReturnsStatus(t *testing.T) {
	leads := &fakeLeadReader{byID: map[string]domain.Lead{
		"lead-1": {ID: "lead-1", Status: domain.LeadContacted},
	}}
	s := NewServer(Config{StatusAPIKeys: []string{"secret"}}, &fakeIngester{}, leads, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/leadStatus/lead-1", nil)
	req.SetPathValue("id", "lead-1")
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()

	s.handleLeadStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<lead_status>contacted</lead_status>") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestHandlePing(t *testing.T) {
	s := newTestServer(&fakeIngester{}, &fakeLeadReader{})
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()

	s.handlePing(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<status>ok</status>") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
