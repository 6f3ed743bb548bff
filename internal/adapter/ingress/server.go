// Package ingress serves the partner-facing lead-intake HTTP surface
// (spec.md §6): JSON lead submission, bulk CSV-style submission, the
// partner-marketplace XML endpoint, and XML health/status checks. It holds
// no business logic of its own beyond request decoding, auth, and response
// shaping; every decision is delegated to internal/usecase/engagement.Engine.
package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"alfred-ai/internal/domain"
	"alfred-ai/internal/infra/middleware"
)

// Ingester is the subset of engagement.Engine the ingress server calls to
// place a new lead into the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, lead domain.Lead) (string, error)
}

// LeadReader is the subset of domain.LeadStore the status endpoint uses.
type LeadReader interface {
	Get(ctx context.Context, id string) (domain.Lead, error)
}

// Config carries the ingress server's listen address and marketplace auth.
type Config struct {
	Addr string

	// MarketplaceAPIKey is carried from config but no handler reads it;
	// /postLead without mode=full is accepted with no key at all.
	// MarketplaceValidAPIKeys is the allow-list checked when a submission
	// requests mode=full (spec.md §6).
	MarketplaceAPIKey       string
	MarketplaceValidAPIKeys []string

	// StatusAPIKeys gates GET /leadStatus/{id}; empty disables the endpoint.
	StatusAPIKeys []string
}

// Server is the ingress HTTP server.
type Server struct {
	cfg      Config
	engine   Ingester
	leads    LeadReader
	logger   *slog.Logger

	server    *http.Server
	boundAddr string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewServer builds an ingress server.
func NewServer(cfg Config, engine Ingester, leads LeadReader, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, engine: engine, leads: leads, logger: logger}
}

// Start begins serving ingress requests. Non-blocking.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /leads", s.handleCreateLead)
	mux.HandleFunc("POST /leads/bulk", s.handleBulkLeads)
	mux.HandleFunc("POST /postLead", s.handlePostLead)
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /leadStatus/{id}", s.handleLeadStatus)

	secureHandler := middleware.SecurityHeaders(
		middleware.RateLimit(s.ctx, 600, 100)(mux),
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
		return fmt.Errorf("ingress listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("ingress server started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ingress server error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the ingress server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeXML(w, http.StatusOK, pingResponse{Status: "ok"})
}

func apiKeyAllowed(key string, allowList []string) bool {
	if key == "" {
		return false
	}
	for _, k := range allowList {
		if k == key {
			return true
		}
	}
	return false
}
