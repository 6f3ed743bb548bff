// Package imapscanner polls a configured IMAP mailbox, applies pattern-match
// rules to unseen messages, and hands matched emails to the Engagement
// Engine as the first inbound message of a new conversation (spec.md §4.6
// point 2, §4.10). Grounded on internal/adapter/channel's poll-loop shape
// (e.g. the Signal channel's ticker-driven receiveMessages).
package imapscanner

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"alfred-ai/internal/domain"
	"alfred-ai/internal/usecase/engagement"
)

// Message is one unseen mailbox message, decoded enough to run rule matching
// and build an inbound conversation message.
type Message struct {
	UID       uint32
	From      string
	FromName  string
	Subject   string
	Body      string
	MessageID string
}

// Mailbox abstracts the IMAP session operations the scanner needs. The
// production implementation (imap.go) drives github.com/emersion/go-imap/v2;
// tests substitute a fake so the poll loop and rule-matching logic can be
// verified without a live mailbox.
type Mailbox interface {
	FetchUnseen(ctx context.Context) ([]Message, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}

// Dialer opens a fresh Mailbox session. The scanner dials once per poll tick
// rather than holding a long-lived IDLE connection, matching the stateless
// poll-per-tick convention the teacher's channel adapters use for polling
// transports.
type Dialer func(ctx context.Context) (Mailbox, error)

// LeadResolver is the subset of domain.LeadStore the scanner needs to find
// or create the lead a matched rule's createLead action targets.
type LeadResolver interface {
	FindByEmail(ctx context.Context, email string) ([]domain.Lead, error)
	Create(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	CompareAndSwap(ctx context.Context, lead domain.Lead) (domain.Lead, error)
}

// Ingester is the subset of engagement.Engine the scanner hands matched
// emails to.
type Ingester interface {
	IngestInboundEmail(ctx context.Context, lead domain.Lead, msg engagement.InboundMessage) (string, error)
}

// Config configures the scanner (spec.md §6 IMAP_HOST/IMAP_PORT/IMAP_USER/
// IMAP_PASSWORD).
type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	Mailbox      string        // default "INBOX"
	PollInterval time.Duration // default 30s
	UseTLS       bool
	Rules        []Rule
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return 30 * time.Second
	}
	return c.PollInterval
}

// Scanner polls a mailbox on a fixed interval and dispatches rule-matched
// emails into the Engagement Engine.
type Scanner struct {
	cfg     Config
	dial    Dialer
	leads   LeadResolver
	engine  Ingester
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scanner. dial is normally NewDialer(cfg); tests pass a
// fake Dialer instead.
func New(cfg Config, dial Dialer, leads LeadResolver, engine Ingester, logger *slog.Logger) *Scanner {
	return &Scanner{cfg: cfg, dial: dial, leads: leads, engine: engine, logger: logger}
}

// Start begins polling. Non-blocking.
func (s *Scanner) Start(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.pollLoop(pollCtx)
}

// Stop halts polling and waits for the in-flight poll, if any, to finish.
func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scanner) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				s.logger.Error("imapscanner: poll failed", "err", err)
			}
		}
	}
}

// poll runs a single scan: dial, fetch unseen messages, match rules, ingest,
// mark seen, close. One failed message never aborts the rest of the batch.
func (s *Scanner) poll(ctx context.Context) error {
	mb, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer mb.Close()

	messages, err := mb.FetchUnseen(ctx)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if err := s.processMessage(ctx, msg); err != nil {
			s.logger.Warn("imapscanner: message processing failed", "uid", msg.UID, "err", err)
			continue
		}
		if err := mb.MarkSeen(ctx, msg.UID); err != nil {
			s.logger.Warn("imapscanner: mark seen failed", "uid", msg.UID, "err", err)
		}
	}
	return nil
}

func (s *Scanner) processMessage(ctx context.Context, msg Message) error {
	rule, matched := firstMatch(s.cfg.Rules, msg.Subject, msg.From, msg.Body)
	if !matched {
		return nil
	}

	lead, err := s.resolveLead(ctx, rule, msg)
	if err != nil {
		return err
	}
	if lead.ID == "" {
		// createLead was false and no existing lead matched; nothing to do.
		return nil
	}

	_, err = s.engine.IngestInboundEmail(ctx, lead, engagement.InboundMessage{
		Channel:     domain.ChannelEmail,
		FromAddress: msg.From,
		Content:     msg.Body,
		ExternalID:  msg.MessageID,
		RawPayload:  msg.Body,
	})
	return err
}

// resolveLead implements the rule's createLead/assignCampaign/setPriority/
// addTags actions. An existing lead is updated in place; a new one is
// created only when the rule's createLead action is set.
func (s *Scanner) resolveLead(ctx context.Context, rule Rule, msg Message) (domain.Lead, error) {
	candidates, err := s.leads.FindByEmail(ctx, msg.From)
	if err != nil {
		return domain.Lead{}, err
	}

	var lead domain.Lead
	isNew := false
	if len(candidates) > 0 {
		lead = candidates[0]
	} else if rule.CreateLead {
		lead = domain.Lead{
			ID:       newULID(),
			Name:     msg.FromName,
			Email:    msg.From,
			Source:   "imap:" + rule.Name,
			Status:   domain.LeadNew,
			Metadata: map[string]string{},
		}
		isNew = true
	} else {
		return domain.Lead{}, nil
	}

	applyActions(&lead, rule)

	if isNew {
		return s.leads.Create(ctx, lead)
	}
	return s.leads.CompareAndSwap(ctx, lead)
}

// applyActions mutates lead in place per the rule's assignCampaign/
// setPriority/addTags actions. Lead has no dedicated Priority/Tags columns,
// so both land in Metadata ("priority", and "tags" as a comma-joined set).
func applyActions(lead *domain.Lead, rule Rule) {
	if rule.AssignCampaignID != "" {
		lead.CampaignID = rule.AssignCampaignID
	}
	if lead.Metadata == nil {
		lead.Metadata = map[string]string{}
	}
	if rule.SetPriority != "" {
		lead.Metadata["priority"] = rule.SetPriority
	}
	if len(rule.AddTags) > 0 {
		existing := strings.Split(lead.Metadata["tags"], ",")
		tagSet := map[string]bool{}
		var merged []string
		for _, t := range existing {
			t = strings.TrimSpace(t)
			if t == "" || tagSet[t] {
				continue
			}
			tagSet[t] = true
			merged = append(merged, t)
		}
		for _, t := range rule.AddTags {
			if t == "" || tagSet[t] {
				continue
			}
			tagSet[t] = true
			merged = append(merged, t)
		}
		lead.Metadata["tags"] = strings.Join(merged, ",")
	}
}
