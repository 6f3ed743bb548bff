// Package engagement implements the Engagement Engine: the per-lead state
// machine driving ingress -> routing -> sending -> reply loop ->
// handover/completion (spec.md §4.1).
package engagement

import (
	"context"

	"alfred-ai/internal/domain"
)

// Overlord makes the channel-assignment routing decision for a newly
// ingested lead (spec.md §4.2). Implemented by internal/usecase/overlord.
type Overlord interface {
	Route(ctx context.Context, lead domain.Lead, campaign domain.Campaign) (domain.OverlordDecision, error)
}

// ChannelAgent composes outbound message content for one channel
// (spec.md §4.3). Implemented by internal/usecase/channelagent.
type ChannelAgent interface {
	ComposeInitial(ctx context.Context, lead domain.Lead, conv domain.LeadConversation, campaign domain.Campaign) (string, error)
	ComposeReply(ctx context.Context, lead domain.Lead, conv domain.LeadConversation, campaign domain.Campaign) (string, error)
	// EvaluateSignals reads a conversation's qualification state (spec.md
	// §4.3), feeding the Handover Evaluator (spec.md §4.7).
	EvaluateSignals(ctx context.Context, conv domain.LeadConversation) (domain.EvaluateSignals, error)
}

// AgentProvider resolves the ChannelAgent for a given channel.
type AgentProvider interface {
	ChannelAgent(ch domain.LeadChannel) (ChannelAgent, error)
}

// JobEnqueuer hands a durable unit of work to the Job Queue.
// Implemented by internal/usecase/jobqueue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job domain.Job) error
}

// TouchCanceler lets the Engine tell the Touch Sequence Scheduler to stop
// sending further steps once a lead replies under conversationMode=auto
// (spec.md §4.5 "reply-cancellation"). Implemented by
// internal/usecase/touchscheduler.
type TouchCanceler interface {
	CancelSequence(ctx context.Context, leadID, campaignID string) error
}
