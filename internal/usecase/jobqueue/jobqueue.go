// Package jobqueue runs Engagement Engine jobs with bounded worker
// concurrency, partitioned FIFO per lead so a lead's own jobs never race
// each other, and exponential-backoff-with-jitter retry up to each job's
// MaxAttempts before the job is dead-lettered (spec.md §4.9).
package jobqueue

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"alfred-ai/internal/domain"
)

// Handler executes one Job. Returning an error causes the queue to retry
// according to the job's BackoffSpec, or dead-letter it once MaxAttempts is
// exhausted. cmd/leadrunner/init_runtime.go wires a single Handler that
// passes every job to Engine.ProcessDispatchJob.
type Handler func(ctx context.Context, job domain.Job) error

// Config parameterizes the queue's worker pool and dead-letter buffer, in
// the same spirit as the teacher's ManagerConfig (bounded concurrency +
// bounded retained state rather than unbounded growth).
type Config struct {
	Workers            int
	DeadLetterCapacity int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.DeadLetterCapacity <= 0 {
		c.DeadLetterCapacity = 256
	}
	return c
}

// partition is one lead's FIFO job backlog. At most one worker ever drains a
// given partition at a time, guaranteeing per-lead ordering while different
// leads' jobs run fully in parallel across the worker pool.
type partition struct {
	jobs       []domain.Job
	processing bool
}

// Queue implements engagement.JobEnqueuer.
type Queue struct {
	cfg     Config
	handler Handler
	bus     domain.EventBus
	logger  *slog.Logger

	mu         sync.Mutex
	partitions map[string]*partition
	ready      chan string

	deadMu sync.Mutex
	dead   []domain.Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Queue. Call Start before Enqueue so enqueued work actually
// drains; Enqueue before Start merely buffers in memory.
func New(cfg Config, handler Handler, bus domain.EventBus, logger *slog.Logger) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:        cfg,
		handler:    handler,
		bus:        bus,
		logger:     logger,
		partitions: make(map[string]*partition),
		ready:      make(chan string, 4096),
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.ctx != nil {
		q.mu.Unlock()
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Stop signals workers to finish their current job and exit, then waits.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	close(q.ready)
	q.wg.Wait()
}

// Enqueue implements engagement.JobEnqueuer. A job is appended to its lead's
// partition; if that partition is idle, its leadID is handed to a worker.
func (q *Queue) Enqueue(ctx context.Context, job domain.Job) error {
	if job.ID == "" {
		job.ID = newJobID()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	p, ok := q.partitions[job.LeadID]
	if !ok {
		p = &partition{}
		q.partitions[job.LeadID] = p
	}
	p.jobs = append(p.jobs, job)
	needsDispatch := !p.processing
	if needsDispatch {
		p.processing = true
	}
	q.mu.Unlock()

	q.emit(ctx, domain.EventJobEnqueued, job.LeadID)

	if needsDispatch {
		select {
		case q.ready <- job.LeadID:
		default:
			// Ready channel is a dispatch hint, not the work itself; a worker
			// that later finds the partition non-empty will drain it anyway,
			// so a full buffer only delays pickup, never drops work.
			go func() { q.ready <- job.LeadID }()
		}
	}
	return nil
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for leadID := range q.ready {
		q.drainPartition(leadID)
	}
}

// drainPartition processes a lead's backlog to empty. Only one worker is
// ever inside this function for a given leadID at a time: the partition's
// processing flag is cleared only once its job slice is empty, and Enqueue
// only resends a leadID to the ready channel when it flips processing from
// false to true.
func (q *Queue) drainPartition(leadID string) {
	for {
		q.mu.Lock()
		p := q.partitions[leadID]
		if p == nil || len(p.jobs) == 0 {
			if p != nil {
				p.processing = false
			}
			q.mu.Unlock()
			return
		}
		job := p.jobs[0]
		p.jobs = p.jobs[1:]
		q.mu.Unlock()

		q.runWithRetry(job)
	}
}

// runWithRetry invokes the handler, retrying with the job's BackoffSpec on
// failure until MaxAttempts is reached, at which point the job is
// dead-lettered rather than dropped silently.
func (q *Queue) runWithRetry(job domain.Job) {
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultDispatchBackoff.MaxAttempts
	}

	for {
		ctx := q.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		err := q.handler(ctx, job)
		if err == nil {
			return
		}

		job.Attempt++
		if job.Attempt >= maxAttempts {
			q.logger.Error("job exhausted retries, dead-lettering",
				"jobId", job.ID, "type", job.Type, "leadId", job.LeadID, "attempts", job.Attempt, "err", err)
			q.deadLetter(job)
			q.emit(ctx, domain.EventJobDeadLettered, job.LeadID)
			return
		}

		delay := backoffDelay(job.Backoff, job.Attempt)
		q.logger.Warn("job failed, retrying",
			"jobId", job.ID, "type", job.Type, "leadId", job.LeadID, "attempt", job.Attempt, "delay", delay, "err", err)
		q.emit(ctx, domain.EventJobRetryScheduled, job.LeadID)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// deadLetter retains up to DeadLetterCapacity failed jobs for operator
// inspection, dropping the oldest once full (bounded like the teacher's
// ringBuffer rather than growing without limit).
func (q *Queue) deadLetter(job domain.Job) {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	q.dead = append(q.dead, job)
	if len(q.dead) > q.cfg.DeadLetterCapacity {
		q.dead = q.dead[len(q.dead)-q.cfg.DeadLetterCapacity:]
	}
}

// DeadLettered returns a snapshot of currently retained dead-lettered jobs.
func (q *Queue) DeadLettered() []domain.Job {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	out := make([]domain.Job, len(q.dead))
	copy(out, q.dead)
	return out
}

// PendingCount returns the number of jobs still queued for leadID, for tests
// and operator diagnostics.
func (q *Queue) PendingCount(leadID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.partitions[leadID]
	if !ok {
		return 0
	}
	return len(p.jobs)
}

func (q *Queue) emit(ctx context.Context, typ domain.EventType, leadID string) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(ctx, domain.Event{Type: typ, Timestamp: time.Now(), SessionID: leadID})
}

// backoffDelay computes exponential backoff with jitter from a BackoffSpec:
// base * factor^(attempt-1), plus up to +/-JitterFrac of that delay.
func backoffDelay(spec domain.BackoffSpec, attempt int) time.Duration {
	base := spec.Base
	if base <= 0 {
		base = time.Second
	}
	factor := spec.Factor
	if factor <= 0 {
		factor = 2
	}
	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= factor
	}
	if spec.JitterFrac > 0 {
		jitterRange := delay * spec.JitterFrac
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func newJobID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
