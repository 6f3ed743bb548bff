package domain

import "context"

// LeadStore persists Lead rows with optimistic-concurrency (version) writes.
type LeadStore interface {
	Create(ctx context.Context, lead Lead) (Lead, error)
	Get(ctx context.Context, id string) (Lead, error)
	FindByDedupeKey(ctx context.Context, key string) (Lead, bool, error)
	FindByEmail(ctx context.Context, email string) ([]Lead, error)
	FindByPhone(ctx context.Context, phone string) ([]Lead, error)
	// CompareAndSwap updates lead iff the stored Version matches lead.Version,
	// returning ErrIdempotencyConflict-wrapped error on mismatch.
	CompareAndSwap(ctx context.Context, lead Lead) (Lead, error)
}

// ConversationStore persists LeadConversation rows, enforcing at-most-one
// active conversation per (lead, channel).
type ConversationStore interface {
	Create(ctx context.Context, conv LeadConversation) (LeadConversation, error)
	Get(ctx context.Context, id string) (LeadConversation, error)
	ActiveForChannel(ctx context.Context, leadID string, ch LeadChannel) (LeadConversation, bool, error)
	MostRecentAwaitingReply(ctx context.Context, leadID string) (LeadConversation, bool, error)
	CompareAndSwap(ctx context.Context, conv LeadConversation) (LeadConversation, error)
}

// CampaignStore persists Campaign configuration.
type CampaignStore interface {
	Get(ctx context.Context, id string) (Campaign, error)
	List(ctx context.Context) ([]Campaign, error)
}

// TemplateStore persists reusable message Templates.
type TemplateStore interface {
	Get(ctx context.Context, id string) (Template, error)
}

// EngagementAgentStore persists Agent configuration by kind or id.
type EngagementAgentStore interface {
	Get(ctx context.Context, id string) (EngagementAgent, error)
	GetByKind(ctx context.Context, kind AgentKind) (EngagementAgent, error)
}

// DecisionStore is an append-only audit log of Overlord/agent decisions.
type DecisionStore interface {
	Append(ctx context.Context, d Decision) error
	ListForLead(ctx context.Context, leadID string) ([]Decision, error)
}

// CommunicationStore persists dispatch records, keyed for idempotency.
type CommunicationStore interface {
	FindByIdempotencyKey(ctx context.Context, key string) (Communication, bool, error)
	// FindByExternalID looks a Communication up by the carrier's message id,
	// the only handle a delivery-status webhook carries (spec.md §4.6).
	FindByExternalID(ctx context.Context, externalID string) (Communication, bool, error)
	Create(ctx context.Context, c Communication) (Communication, error)
	UpdateStatus(ctx context.Context, id string, status CommunicationStatus, externalID string) error
	CountSentSince(ctx context.Context, campaignID string, sinceUnix int64) (int, error)
}

// HandoverStore persists HandoverExecution rows, one per (conversation, trigger-cycle).
type HandoverStore interface {
	Create(ctx context.Context, h HandoverExecution) (HandoverExecution, error)
	ExistsForConversation(ctx context.Context, conversationID string) (bool, error)
	Get(ctx context.Context, id string) (HandoverExecution, error)
	Update(ctx context.Context, h HandoverExecution) error
	PendingFollowUps(ctx context.Context, beforeUnix int64) ([]HandoverExecution, error)
}

// OrphanReplyStore persists unmatched inbound messages for operator review.
type OrphanReplyStore interface {
	Create(ctx context.Context, o OrphanReply) error
	List(ctx context.Context, limit int) ([]OrphanReply, error)
}

// CircuitBreakerStateStore shares breaker trip state across workers
// (spec.md §4.8: "kept in shared storage when available"). Implementations
// must fail open locally when the shared store is unavailable.
type CircuitBreakerStateStore interface {
	Load(ctx context.Context, service string) (BreakerSnapshot, bool, error)
	Save(ctx context.Context, service string, snap BreakerSnapshot) error
}

// BreakerSnapshot is the persisted state of one circuit breaker.
type BreakerSnapshot struct {
	Service     string `json:"service"`
	State       string `json:"state"` // closed, open, half_open
	Failures    int    `json:"failures"`
	Successes   int    `json:"successes"`
	OpenedAtUnix int64 `json:"openedAtUnix"`
}
