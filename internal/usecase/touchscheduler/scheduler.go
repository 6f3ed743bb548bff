// Package touchscheduler runs a campaign's scheduled multi-step touch
// sequence in parallel with reactive replies (spec.md §4.5), while a Reply
// Ingester separately drives the Engagement Engine's reply loop.
package touchscheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"alfred-ai/internal/domain"
	"alfred-ai/internal/usecase/engagement"
)

// leadSequenceState is the scheduler's own view of a lead's progress through
// its campaign's TouchSequence, kept separately from any persisted row
// (spec.md §4.5: "the scheduler maintains per-lead state
// {currentIndex, nextFireAt}").
type leadSequenceState struct {
	campaignID   string
	currentIndex int
	nextFireAt   time.Time
	canceled     bool
}

// Scheduler owns the per-lead touch sequence cursor and fires dispatch_touch
// jobs at the delays a Campaign's TouchSequence specifies, honoring business
// hours, allowed weekdays, and daily send caps.
type Scheduler struct {
	cron      *cron.Cron
	campaigns domain.CampaignStore
	comms     domain.CommunicationStore
	jobs      engagement.JobEnqueuer
	logger    *slog.Logger

	mu      sync.Mutex
	state   map[string]*leadSequenceState // keyed by leadID
	entries map[string]cron.EntryID       // keyed by leadID, the pending fire
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds a Scheduler. Call Start before EnrollLead.
func New(campaigns domain.CampaignStore, comms domain.CommunicationStore, jobs engagement.JobEnqueuer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		campaigns: campaigns,
		comms:     comms,
		jobs:      jobs,
		logger:    logger,
		state:     make(map[string]*leadSequenceState),
		entries:   make(map[string]cron.EntryID),
	}
}

// Start begins running the underlying cron driver.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
}

// Stop halts the cron driver and waits for in-flight fires to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
}

// EnrollLead starts a lead's touch sequence at step 1 (step 0 is sent
// immediately by the Engagement Engine at ingress per spec.md §4.1/§4.5); it
// is a no-op for campaigns with fewer than two steps or conversationMode
// ai_only, which spec.md §4.5 excludes from sequence enrollment.
func (s *Scheduler) EnrollLead(ctx context.Context, leadID, campaignID string, step0SentAt time.Time) error {
	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.ConversationMode == domain.ModeAIOnly || len(campaign.TouchSequence) < 2 {
		return nil
	}

	s.mu.Lock()
	s.state[leadID] = &leadSequenceState{campaignID: campaignID, currentIndex: 0}
	s.mu.Unlock()

	return s.scheduleNext(leadID, campaign, 1, step0SentAt)
}

// CancelSequence implements engagement.TouchCanceler: it stops any pending
// fire for leadID and marks the sequence canceled so an in-flight fire
// (already popped off cron, racing this call) becomes a no-op.
func (s *Scheduler) CancelSequence(_ context.Context, leadID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.state[leadID]; ok {
		st.canceled = true
	}
	if entryID, ok := s.entries[leadID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, leadID)
	}
	return nil
}

func (s *Scheduler) scheduleNext(leadID string, campaign domain.Campaign, stepIndex int, prevSentAt time.Time) error {
	if stepIndex >= len(campaign.TouchSequence) {
		return nil
	}
	step := campaign.TouchSequence[stepIndex]

	fireAt := prevSentAt.Add(stepDelay(step))
	fireAt = applyBusinessHours(fireAt, campaign.Settings)
	if !fireAt.After(time.Now()) {
		// onceSchedule never fires a time that has already passed by the
		// moment cron computes its first entry; clamp so due touches still
		// fire promptly instead of silently vanishing.
		fireAt = time.Now().Add(time.Second)
	}

	s.mu.Lock()
	if st, ok := s.state[leadID]; ok {
		st.nextFireAt = fireAt
	}
	s.mu.Unlock()

	schedule := cronAt(fireAt)
	var entryID cron.EntryID
	entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(leadID, campaign.ID, stepIndex)
	}))

	s.mu.Lock()
	s.entries[leadID] = entryID
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) fire(leadID, campaignID string, stepIndex int) {
	s.mu.Lock()
	st, ok := s.state[leadID]
	ctx := s.ctx
	s.mu.Unlock()
	if !ok || st.canceled || ctx == nil {
		return
	}

	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		s.logger.Error("touchscheduler: load campaign failed", "leadId", leadID, "err", err)
		return
	}

	if s.overDailyCap(ctx, campaign) || !withinAllowedWeekday(time.Now(), campaign.Settings) {
		// Defer, don't drop: reschedule one hour out (spec.md §4.5 "over-cap
		// jobs defer, not drop").
		s.requeue(leadID, campaignID, stepIndex, time.Now().Add(time.Hour))
		return
	}

	convID := "" // resolved by the dispatch handler from the lead's active conversation
	if err := s.jobs.Enqueue(ctx, domain.Job{
		ID:             fmt.Sprintf("touch-%s-%d", leadID, stepIndex),
		Type:           domain.JobDispatchTouch,
		LeadID:         leadID,
		IdempotencyKey: domain.TouchIdempotencyKey(leadID, campaignID, stepIndex),
		Backoff:        domain.DefaultDispatchBackoff,
		MaxAttempts:    domain.DefaultDispatchBackoff.MaxAttempts,
		Payload:        []byte(convID),
	}); err != nil {
		s.logger.Error("touchscheduler: enqueue touch failed", "leadId", leadID, "step", stepIndex, "err", err)
		return
	}

	s.mu.Lock()
	st.currentIndex = stepIndex
	delete(s.entries, leadID)
	s.mu.Unlock()

	if err := s.scheduleNext(leadID, campaign, stepIndex+1, time.Now()); err != nil {
		s.logger.Error("touchscheduler: schedule next step failed", "leadId", leadID, "err", err)
	}
}

func (s *Scheduler) requeue(leadID, campaignID string, stepIndex int, at time.Time) {
	schedule := cronAt(at)
	var entryID cron.EntryID
	entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(leadID, campaignID, stepIndex)
	}))
	s.mu.Lock()
	s.entries[leadID] = entryID
	s.mu.Unlock()
}

func (s *Scheduler) overDailyCap(ctx context.Context, campaign domain.Campaign) bool {
	if campaign.Settings.DailySendCap <= 0 {
		return false
	}
	count, err := s.comms.CountSentSince(ctx, campaign.ID, time.Now().Add(-24*time.Hour).Unix())
	if err != nil {
		s.logger.Warn("touchscheduler: daily cap check failed, allowing send", "campaignId", campaign.ID, "err", err)
		return false
	}
	return count >= campaign.Settings.DailySendCap
}

func stepDelay(step domain.TouchStep) time.Duration {
	switch step.DelayUnit {
	case domain.DelayMinutes:
		return time.Duration(step.Delay) * time.Minute
	case domain.DelayDays:
		return time.Duration(step.Delay) * 24 * time.Hour
	default:
		return time.Duration(step.Delay) * time.Hour
	}
}

// applyBusinessHours pushes t forward to the campaign's configured
// [startHour, endHour) window when it falls outside it (spec.md §4.5).
func applyBusinessHours(t time.Time, settings domain.CampaignSettings) time.Time {
	if settings.BusinessHoursStart == 0 && settings.BusinessHoursEnd == 0 {
		return t
	}
	hour := t.Hour()
	if hour >= settings.BusinessHoursStart && hour < settings.BusinessHoursEnd {
		return t
	}
	next := time.Date(t.Year(), t.Month(), t.Day(), settings.BusinessHoursStart, 0, 0, 0, t.Location())
	if hour >= settings.BusinessHoursEnd {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func withinAllowedWeekday(t time.Time, settings domain.CampaignSettings) bool {
	if len(settings.AllowedWeekdays) == 0 {
		return true
	}
	for _, wd := range settings.AllowedWeekdays {
		if time.Weekday(wd) == t.Weekday() {
			return true
		}
	}
	return false
}

// cronAt builds a one-shot cron.Schedule that fires once at t.
func cronAt(t time.Time) cron.Schedule {
	return &onceSchedule{at: t}
}

// onceSchedule fires once at a specific time. Thread-safe via atomic.
type onceSchedule struct {
	at   time.Time
	done atomic.Bool
}

func (s *onceSchedule) Next(t time.Time) time.Time {
	if s.done.Load() || t.After(s.at) {
		s.done.Store(true)
		return time.Time{} // zero value = never fire again
	}
	s.done.Store(true)
	return s.at
}
