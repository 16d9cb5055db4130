package tokenprovider

import (
	"sync"
	"time"

	"3tcapital/tokenbroker/internal/core/authtoken"
)

// Scheduler holds at most one pending deferred call.
type Scheduler struct {
	timers authtoken.TimerFactory

	mu      sync.Mutex
	timer   authtoken.Timer
	seq     uint64
	pending bool
}

// NewScheduler creates a scheduler on top of timers.
func NewScheduler(timers authtoken.TimerFactory) *Scheduler {
	return &Scheduler{timers: timers}
}

// Schedule arms onFire to run once after until-from has elapsed, replacing any
// pending schedule.
func (s *Scheduler) Schedule(from, until time.Time, onFire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.seq++
	seq := s.seq
	s.pending = true
	s.timer = s.timers.AfterFunc(until.Sub(from), func() {
		// A timer that lost the race against Stop must not run.
		s.mu.Lock()
		if !s.pending || s.seq != seq {
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.timer = nil
		s.mu.Unlock()

		onFire()
	})
}

// Cancel drops the pending schedule. Calling it with nothing pending is a no-op.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Pending reports whether a schedule is armed and has not fired yet.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.pending {
		s.pending = false
		s.seq++
	}
}
