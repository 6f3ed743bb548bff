package domain

import "time"

// OrphanReply is an inbound message that could not be matched to any Lead
// (spec.md §4.6). It is retained verbatim for operator review.
type OrphanReply struct {
	ID          string            `json:"id"`
	Channel     LeadChannel       `json:"channel"`
	FromAddress string            `json:"fromAddress"`
	RawPayload  string            `json:"rawPayload"`
	ReceivedAt  time.Time         `json:"receivedAt"`
	Reason      string            `json:"reason"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
