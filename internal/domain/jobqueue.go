package domain

import "time"

// JobType identifies the kind of work a Job Queue entry performs.
type JobType string

const (
	JobDispatchInitial JobType = "dispatch_initial"
	JobDispatchTouch   JobType = "dispatch_touch"
	JobDispatchReply   JobType = "dispatch_reply"
	JobHandleReply     JobType = "handle_reply"
	JobHandoverFanout  JobType = "handover_fanout"
)

// BackoffSpec parameterizes exponential backoff with jitter, matching
// spec.md §4.1 ("base 1s, factor 2, jitter ±25%").
type BackoffSpec struct {
	Base       time.Duration
	Factor     float64
	JitterFrac float64
	MaxAttempts int
}

// DefaultDispatchBackoff is the backoff used for carrier dispatch jobs.
var DefaultDispatchBackoff = BackoffSpec{Base: time.Second, Factor: 2, JitterFrac: 0.25, MaxAttempts: 5}

// DefaultAgentBackoff is the backoff used for agent-generation jobs.
var DefaultAgentBackoff = BackoffSpec{Base: time.Second, Factor: 2, JitterFrac: 0.25, MaxAttempts: 3}

// Job is a durable unit of work on the Job Queue, partitioned FIFO by LeadID.
type Job struct {
	ID             string
	Type           JobType
	LeadID         string
	Payload        []byte
	Attempt        int
	MaxAttempts    int
	Backoff        BackoffSpec
	IdempotencyKey string
	EnqueuedAt     time.Time
	Deadline       time.Time
}
