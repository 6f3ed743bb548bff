package domain

import "time"

// LeadChannel is the outbound/inbound channel a Conversation runs on.
type LeadChannel string

const (
	ChannelEmail LeadChannel = "email"
	ChannelSMS   LeadChannel = "sms"
	ChannelChat  LeadChannel = "chat"
)

// ConversationStatus tracks whether a Conversation is waiting on the lead,
// waiting on us, or closed.
type ConversationStatus string

const (
	ConvActive        ConversationStatus = "active"
	ConvAwaitingReply ConversationStatus = "awaiting_reply"
	ConvReplied       ConversationStatus = "replied"
	ConvClosed        ConversationStatus = "closed"
)

// CloseReason records why a conversation moved to ConvClosed, distinguishing
// quiescence timeout from an explicit opt-out (spec.md §4.1/§4.3).
const (
	CloseReasonQuiescent = "quiescent"
	CloseReasonOptOut    = "opt_out"
)

// MessageDirection is inbound (from the lead) or outbound (from the system).
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// EngagementMessage is one append-only entry in a Conversation's message log.
type EngagementMessage struct {
	Index      int               `json:"index"`
	Direction  MessageDirection  `json:"direction"`
	Content    string            `json:"content"`
	Timestamp  time.Time         `json:"timestamp"`
	ExternalID string            `json:"externalId,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// LeadConversation is an ordered exchange of messages between the system and
// a Lead on one channel. Exactly one active conversation per (lead, channel)
// may exist at a time (spec.md §3 invariant, enforced by the store layer).
type LeadConversation struct {
	Versioned
	ID          string              `json:"id"`
	LeadID      string              `json:"leadId"`
	Channel     LeadChannel         `json:"channel"`
	Status      ConversationStatus  `json:"status"`
	CloseReason string              `json:"closeReason,omitempty"`
	Messages    []EngagementMessage `json:"messages"`
}

// Append adds a message, assigning it the next sequential index. Messages are
// append-only; callers must never mutate a previously appended entry.
func (c *LeadConversation) Append(msg EngagementMessage) EngagementMessage {
	msg.Index = len(c.Messages)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.Messages = append(c.Messages, msg)
	return msg
}

// LastInbound returns the most recent inbound message, if any.
func (c *LeadConversation) LastInbound() (EngagementMessage, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Direction == DirectionInbound {
			return c.Messages[i], true
		}
	}
	return EngagementMessage{}, false
}

// MessageCount returns the total number of messages in the conversation.
func (c *LeadConversation) MessageCount() int { return len(c.Messages) }

// ElapsedSince returns the duration between the first and last message.
func (c *LeadConversation) ElapsedSince() time.Duration {
	if len(c.Messages) == 0 {
		return 0
	}
	return c.Messages[len(c.Messages)-1].Timestamp.Sub(c.Messages[0].Timestamp)
}
