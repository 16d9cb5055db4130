package clock

import (
	"sync"
	"time"

	"3tcapital/tokenbroker/internal/core/authtoken"
)

// Manual is a logical clock. Time only moves when Advance is called, and due
// callbacks run synchronously on the caller's goroutine, ordered by deadline
// and then by the order in which they were scheduled.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks []*manualTimer
}

var (
	_ authtoken.Clock        = (*Manual)(nil)
	_ authtoken.TimerFactory = (*Manual)(nil)
)

type manualTimer struct {
	clock    *Manual
	deadline time.Time
	seq      uint64
	f        func()
	done     bool
}

// NewManual creates a logical clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the logical instant.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f to run once the clock has been advanced by d.
// A non-positive d makes f due on the next Advance, including Advance(0).
func (m *Manual) AfterFunc(d time.Duration, f func()) authtoken.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{
		clock:    m,
		deadline: m.now.Add(d),
		seq:      m.seq,
		f:        f,
	}
	m.tasks = append(m.tasks, t)
	return t
}

// Advance moves the clock forward by d, running every callback that falls due.
// While a callback runs, Now reports that callback's deadline. Callbacks
// scheduled by other callbacks run too when they fall within the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.popDue(target)
		if next == nil {
			if target.After(m.now) {
				m.now = target
			}
			m.mu.Unlock()
			return
		}
		if next.deadline.After(m.now) {
			m.now = next.deadline
		}
		m.mu.Unlock()

		next.f()
	}
}

// Pending returns the number of callbacks waiting to run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// popDue removes and returns the earliest task due at or before target.
// Callers must hold m.mu.
func (m *Manual) popDue(target time.Time) *manualTimer {
	idx := -1
	for i, t := range m.tasks {
		if t.deadline.After(target) {
			continue
		}
		if idx == -1 || t.deadline.Before(m.tasks[idx].deadline) ||
			(t.deadline.Equal(m.tasks[idx].deadline) && t.seq < m.tasks[idx].seq) {
			idx = i
		}
	}
	if idx == -1 {
		return nil
	}

	t := m.tasks[idx]
	m.tasks = append(m.tasks[:idx], m.tasks[idx+1:]...)
	t.done = true
	return t
}

// Stop cancels the callback if it has not run yet.
func (t *manualTimer) Stop() bool {
	m := t.clock
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	for i, candidate := range m.tasks {
		if candidate == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			break
		}
	}
	return true
}
