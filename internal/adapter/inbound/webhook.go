// Package inbound receives carrier callbacks (email/SMS delivery status and
// replies) over HTTP and normalizes them onto internal/usecase/engagement's
// reply and communication paths (spec.md §4.6). It never decides business
// logic itself: delivery-status events update a Communication row directly,
// reply events are handed to Engine.HandleReply.
package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"alfred-ai/internal/adapter/carrier"
	"alfred-ai/internal/domain"
	"alfred-ai/internal/infra/middleware"
	"alfred-ai/internal/usecase/engagement"
)

const maxWebhookBody = 1 << 20 // 1MB, matches channel/http.go's inbound body cap

// ReplyHandler is the subset of engagement.Engine the webhook receiver calls
// for normalized inbound replies.
type ReplyHandler interface {
	HandleReply(ctx context.Context, msg engagement.InboundMessage) error
}

// Comms is the subset of domain.CommunicationStore the webhook receiver uses
// to record delivery-status updates that never touch a conversation.
type Comms interface {
	FindByExternalID(ctx context.Context, externalID string) (domain.Communication, bool, error)
	UpdateStatus(ctx context.Context, id string, status domain.CommunicationStatus, externalID string) error
}

// HandoverConfirmer is the subset of handover.Evaluator the webhook receiver
// calls when a human system acknowledges receipt of a dispatched dossier.
type HandoverConfirmer interface {
	Confirm(ctx context.Context, handoverID string) error
}

// Config carries the per-carrier verification secrets.
type Config struct {
	Addr string

	EmailWebhookSecret string // HMAC-SHA256 shared secret, "sha256=<hex>" header

	SMSAuthToken   string // Twilio auth token, X-Twilio-Signature header
	SMSWebhookBase string // externally-visible base URL for signature recomputation
}

// Server receives carrier webhooks over HTTP.
type Server struct {
	cfg       Config
	replies   ReplyHandler
	comms     Comms
	handovers HandoverConfirmer
	logger    *slog.Logger

	server    *http.Server
	boundAddr string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewServer builds a webhook receiver.
func NewServer(cfg Config, replies ReplyHandler, comms Comms, handovers HandoverConfirmer, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, replies: replies, comms: comms, handovers: handovers, logger: logger}
}

// Start begins serving webhooks. Non-blocking.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/email", s.handleEmail)
	mux.HandleFunc("/webhooks/sms", s.handleSMS)
	mux.HandleFunc("/webhooks/handover/confirmation", s.handleHandoverConfirmation)
	mux.HandleFunc("/healthz", s.handleHealth)

	secureHandler := middleware.SecurityHeaders(
		middleware.RateLimit(s.ctx, 300, 50)(mux),
	)

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           secureHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("inbound listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("inbound webhook server started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("inbound webhook server error", "err", err)
		}
	}()
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// Stop gracefully shuts the receiver down.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// emailWebhookPayload is the transactional email provider's callback shape:
// status-only events carry no Reply fields; reply events carry From/Subject/
// TextBody/InReplyTo.
type emailWebhookPayload struct {
	Event      string `json:"event"` // delivered, bounced, failed, reply
	MessageID  string `json:"messageId"`
	From       string `json:"from,omitempty"`
	TextBody   string `json:"textBody,omitempty"`
	InReplyTo  string `json:"inReplyTo,omitempty"`
}

func (s *Server) handleEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "body too large", http.StatusBadRequest)
		return
	}

	if s.cfg.EmailWebhookSecret != "" {
		if !carrier.VerifyHMACSHA256(s.cfg.EmailWebhookSecret, body, r.Header.Get("X-Handover-Signature")) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload emailWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if payload.Event == "reply" {
		err = s.replies.HandleReply(r.Context(), engagement.InboundMessage{
			Channel:     domain.ChannelEmail,
			FromAddress: payload.From,
			Content:     payload.TextBody,
			ExternalID:  payload.MessageID,
			InReplyTo:   payload.InReplyTo,
			RawPayload:  string(body),
		})
	} else {
		err = s.recordStatus(r.Context(), payload.MessageID, mapEmailStatus(payload.Event))
	}
	s.respond(w, err)
}

// handleSMS accepts both of Twilio's application/x-www-form-urlencoded
// callbacks: the status callback and the inbound-message webhook. Both share
// the MessageSid field, so the handler distinguishes by presence of Body.
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "body too large", http.StatusBadRequest)
		return
	}

	if s.cfg.SMSAuthToken != "" {
		webhookURL := s.cfg.SMSWebhookBase + r.URL.Path
		if !carrier.VerifyTwilioSignature(s.cfg.SMSAuthToken, webhookURL, body, r.Header.Get("X-Twilio-Signature")) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	sid := form.Get("MessageSid")
	from := domain.NormalizePhone(form.Get("From"))
	text := form.Get("Body")
	status := form.Get("MessageStatus")

	if text != "" {
		err = s.replies.HandleReply(r.Context(), engagement.InboundMessage{
			Channel:     domain.ChannelSMS,
			FromAddress: from,
			Content:     text,
			ExternalID:  sid,
			RawPayload:  string(body),
		})
	} else {
		err = s.recordStatus(r.Context(), sid, mapTwilioStatus(status))
	}
	s.respond(w, err)
}

// handoverConfirmationPayload is the human-system acknowledgment callback
// body: just enough to identify which dispatched dossier was received.
type handoverConfirmationPayload struct {
	HandoverID string `json:"handoverId"`
}

func (s *Server) handleHandoverConfirmation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "body too large", http.StatusBadRequest)
		return
	}

	var payload handoverConfirmationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if payload.HandoverID == "" {
		http.Error(w, "handoverId is required", http.StatusBadRequest)
		return
	}

	err = s.handovers.Confirm(r.Context(), payload.HandoverID)
	if err != nil && errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "unknown handover id", http.StatusNotFound)
		return
	}
	s.respond(w, err)
}

func (s *Server) recordStatus(ctx context.Context, externalID string, status domain.CommunicationStatus) error {
	if externalID == "" || status == "" {
		return nil
	}
	comm, found, err := s.comms.FindByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if !found {
		// Callback for a message this instance never dispatched (or a retry
		// racing the Create call); nothing to update.
		return nil
	}
	return s.comms.UpdateStatus(ctx, comm.ID, status, externalID)
}

func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrOrphanReply) {
			// Orphan replies are a recorded, expected outcome, not a delivery
			// failure; the carrier should not retry this callback.
			w.WriteHeader(http.StatusOK)
			return
		}
		s.logger.Error("inbound webhook: handling failed", "err", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func mapEmailStatus(event string) domain.CommunicationStatus {
	switch event {
	case "delivered":
		return domain.CommDelivered
	case "bounced":
		return domain.CommBounced
	case "failed":
		return domain.CommFailed
	default:
		return ""
	}
}

func mapTwilioStatus(status string) domain.CommunicationStatus {
	switch status {
	case "delivered":
		return domain.CommDelivered
	case "undelivered", "failed":
		return domain.CommFailed
	default:
		return ""
	}
}
