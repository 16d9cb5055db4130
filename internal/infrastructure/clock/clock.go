// Package clock provides the time sources used by the token provider: the
// wall clock for production and a manually advanced logical clock for tests.
package clock

import (
	"time"

	"3tcapital/tokenbroker/internal/core/authtoken"
)

// System reads the wall clock and defers work with time.AfterFunc.
type System struct{}

var (
	_ authtoken.Clock        = System{}
	_ authtoken.TimerFactory = System{}
)

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// AfterFunc runs f in its own goroutine once d has elapsed.
func (System) AfterFunc(d time.Duration, f func()) authtoken.Timer {
	return time.AfterFunc(d, f)
}
