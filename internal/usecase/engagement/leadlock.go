package engagement

import (
	"context"
	"fmt"
	"sync"
)

// LeadLocker provides operation-level mutual exclusion per lead. It
// enforces spec.md §4.1's "only one transition may be in flight per lead at
// a time" by preventing two concurrent Engine calls from operating on the
// same lead simultaneously.
type LeadLocker struct {
	mu    sync.Mutex
	locks map[string]*leadMutex
}

type leadMutex struct {
	mu       sync.Mutex
	refCount int
}

// NewLeadLocker creates a new lead locker.
func NewLeadLocker() *LeadLocker {
	return &LeadLocker{
		locks: make(map[string]*leadMutex),
	}
}

// Lock acquires the lock for the given lead ID. It blocks until the lock is
// acquired or the context is cancelled. Returns an unlock function that
// MUST be called when the operation is complete.
func (sl *LeadLocker) Lock(ctx context.Context, leadID string) (unlock func(), err error) {
	sl.mu.Lock()
	sm, ok := sl.locks[leadID]
	if !ok {
		sm = &leadMutex{}
		sl.locks[leadID] = sm
	}
	sm.refCount++
	sl.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		sm.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() {
			sm.mu.Unlock()
			sl.mu.Lock()
			sm.refCount--
			if sm.refCount == 0 {
				delete(sl.locks, leadID)
			}
			sl.mu.Unlock()
		}, nil

	case <-ctx.Done():
		// Must wait for the goroutine to finish acquiring, then immediately
		// release, to avoid a permanently held lock once it lands.
		go func() {
			<-acquired
			sm.mu.Unlock()
			sl.mu.Lock()
			sm.refCount--
			if sm.refCount == 0 {
				delete(sl.locks, leadID)
			}
			sl.mu.Unlock()
		}()
		return nil, fmt.Errorf("lead lock: %w", ctx.Err())
	}
}

// ActiveCount returns the number of leads with active or pending locks.
// Intended for testing.
func (sl *LeadLocker) ActiveCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.locks)
}
