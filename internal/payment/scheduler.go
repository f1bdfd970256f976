package payment

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler runs at most one delayed settlement task per escrow.
// Scheduling an escrow that already has a task pending is a no-op, and
// a task can be cancelled before it fires (e.g. when the escrow leaves
// waiting_payment by another path).
type Scheduler struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: map[uuid.UUID]*time.Timer{}}
}

// Schedule arms fn to run after delay, keyed by escrowID. Returns false
// if a task for this escrow is already pending.
func (s *Scheduler) Schedule(escrowID uuid.UUID, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timers[escrowID]; ok {
		return false
	}

	s.timers[escrowID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, escrowID)
		s.mu.Unlock()
		fn()
	})
	return true
}

// Cancel stops a pending task. Returns false if none was pending.
func (s *Scheduler) Cancel(escrowID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[escrowID]
	if !ok {
		return false
	}
	delete(s.timers, escrowID)
	return timer.Stop()
}

// Pending reports whether a task is armed for the escrow.
func (s *Scheduler) Pending(escrowID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[escrowID]
	return ok
}
