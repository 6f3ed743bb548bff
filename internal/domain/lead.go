package domain

import "time"

// LeadStatus is the lifecycle stage of a Lead.
type LeadStatus string

const (
	LeadNew         LeadStatus = "new"
	LeadContacted   LeadStatus = "contacted"
	LeadEngaged     LeadStatus = "engaged"
	LeadQualified   LeadStatus = "qualified"
	LeadHandedOver  LeadStatus = "handed_over"
	LeadCompleted   LeadStatus = "completed"
	LeadRejected    LeadStatus = "rejected"
	LeadArchived    LeadStatus = "archived"
)

// terminalLeadStatuses are the statuses a Lead cannot transition out of.
var terminalLeadStatuses = map[LeadStatus]bool{
	LeadHandedOver: true,
	LeadCompleted:  true,
	LeadRejected:   true,
	LeadArchived:   true,
}

// IsTerminal reports whether a lead status is a terminal lifecycle state.
func (s LeadStatus) IsTerminal() bool { return terminalLeadStatuses[s] }

// validLeadTransitions enumerates the allowed LeadStatus edges. engaged and
// qualified may oscillate; every other edge is monotonic, matching spec.md §3.
var validLeadTransitions = map[LeadStatus]map[LeadStatus]bool{
	LeadNew:       {LeadContacted: true, LeadArchived: true, LeadRejected: true},
	LeadContacted: {LeadEngaged: true, LeadArchived: true, LeadRejected: true},
	LeadEngaged:   {LeadQualified: true, LeadHandedOver: true, LeadCompleted: true, LeadArchived: true, LeadRejected: true},
	LeadQualified: {LeadEngaged: true, LeadHandedOver: true, LeadCompleted: true, LeadArchived: true, LeadRejected: true},
}

// CanTransition reports whether moving from s to next is a legal Lead lifecycle edge.
func (s LeadStatus) CanTransition(next LeadStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return validLeadTransitions[s][next]
}

// Versioned carries the optimistic-concurrency and audit columns every
// persisted row described in spec.md §6 owns.
type Versioned struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`
}

// Lead is a prospective contact with at least one reachable identifier.
type Lead struct {
	Versioned
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Email      string            `json:"email,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	Source     string            `json:"source"`
	CampaignID string            `json:"campaignId,omitempty"`
	Status     LeadStatus        `json:"status"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Contactable reports whether the lead has any usable outbound channel.
func (l Lead) Contactable() bool {
	return l.Email != "" || l.Phone != ""
}

// HasChannel reports whether the lead can be reached on the given channel.
func (l Lead) HasChannel(ch LeadChannel) bool {
	switch ch {
	case ChannelEmail:
		return l.Email != ""
	case ChannelSMS:
		return l.Phone != ""
	case ChannelChat:
		// Chat is reachable whenever the lead entered through a chat-capable
		// source; the engine treats chat as always-contactable once a
		// conversation has been opened by an inbound widget message.
		return true
	default:
		return false
	}
}

// DedupeKey is the key used to enforce idempotent Ingest per spec.md §4.1:
// "idempotent on (source, source_external_id)".
func (l Lead) DedupeKey() string {
	ext := l.Metadata["source_external_id"]
	return l.Source + "|" + ext
}
