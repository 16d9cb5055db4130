package authtoken

import (
	"context"
	"time"
)

// RefreshOperation obtains a fresh token from the remote authority.
// Implementations perform a single attempt; retries are the caller's business.
type RefreshOperation interface {
	Refresh(ctx context.Context) (Token, error)
}

// RefreshFunc adapts a plain function to RefreshOperation.
type RefreshFunc func(ctx context.Context) (Token, error)

// Refresh calls f.
func (f RefreshFunc) Refresh(ctx context.Context) (Token, error) {
	return f(ctx)
}

// LoginStateSource reports whether a user is currently logged in.
//
// Subscribe delivers the most recent state to onState right away (when one is
// known) and then every change. onDone is called once if the source completes;
// no state follows it. The returned function detaches the subscriber.
type LoginStateSource interface {
	Subscribe(onState func(loggedIn bool), onDone func()) (unsubscribe func())
}

// Clock returns the current instant. Every validity check and timer arming
// goes through the same Clock so tests can drive time by hand.
type Clock interface {
	Now() time.Time
}

// Timer is a pending deferred call.
type Timer interface {
	// Stop prevents the call from running. It reports false when the call
	// already ran or was already stopped.
	Stop() bool
}

// TimerFactory defers work against the same time source as Clock.
type TimerFactory interface {
	AfterFunc(d time.Duration, f func()) Timer
}
