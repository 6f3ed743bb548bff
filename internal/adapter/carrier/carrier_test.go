package carrier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"alfred-ai/internal/domain"
)

func hmacHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestEmailCarrierSendReturnsExternalID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"email-ext-1"}`))
	}))
	defer srv.Close()

	c := NewEmailCarrier(EmailConfig{APIURL: srv.URL, APIKey: "test-key", FromEmail: "bot@example.com"})
	lead := domain.Lead{ID: "lead-1", Email: "ada@example.com"}

	externalID, err := c.Send(t.Context(), domain.ChannelEmail, lead, "hello there")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if externalID != "email-ext-1" {
		t.Fatalf("externalID = %q, want email-ext-1", externalID)
	}
}

func TestEmailCarrierRejectsLeadWithoutEmail(t *testing.T) {
	c := NewEmailCarrier(EmailConfig{APIURL: "http://unused"})
	_, err := c.Send(t.Context(), domain.ChannelEmail, domain.Lead{ID: "lead-2"}, "hi")
	if err == nil {
		t.Fatal("expected error for lead with no email")
	}
}

func TestEmailCarrierSurfacesCarrierTransientOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewEmailCarrier(EmailConfig{APIURL: srv.URL})
	_, err := c.Send(t.Context(), domain.ChannelEmail, domain.Lead{Email: "ada@example.com"}, "hi")
	if !errors.Is(err, domain.ErrCarrierTransient) {
		t.Fatalf("err = %v, want ErrCarrierTransient", err)
	}
}

func TestSMSCarrierSendsFormEncodedTwilioRequest(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewSMSCarrier(SMSConfig{AccountSID: "AC123", AuthToken: "secret", FromNumber: "+15550001111", APIBaseURL: srv.URL})
	externalID, err := c.Send(t.Context(), domain.ChannelSMS, domain.Lead{Phone: "+15559998888"}, "reach out")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if externalID != "SM123" {
		t.Fatalf("externalID = %q, want SM123", externalID)
	}
	if !strings.Contains(gotBody, "Body=reach+out") {
		t.Fatalf("body = %q, missing form-encoded Body", gotBody)
	}
}

func TestSMSCarrierRejectsLeadWithoutPhone(t *testing.T) {
	c := NewSMSCarrier(SMSConfig{AccountSID: "AC1", AuthToken: "t"})
	_, err := c.Send(t.Context(), domain.ChannelSMS, domain.Lead{ID: "lead-3"}, "hi")
	if err == nil {
		t.Fatal("expected error for lead with no phone")
	}
}

func TestVerifyHMACSHA256RoundTrips(t *testing.T) {
	body := []byte(`{"event":"reply"}`)
	secret := "whsec"
	sig := "sha256=" + hmacHex(secret, body)
	if !VerifyHMACSHA256(secret, body, sig) {
		t.Fatal("expected signature to verify")
	}
	if VerifyHMACSHA256(secret, body, "sha256=deadbeef") {
		t.Fatal("expected tampered signature to fail")
	}
}
