// Package loginstate provides an in-memory login-state source fed by the
// session endpoints and the process configuration.
package loginstate

import (
	"log/slog"

	"3tcapital/tokenbroker/internal/core/authtoken"
	"3tcapital/tokenbroker/internal/infrastructure/broadcast"
)

// Relay is a replay-latest login-state source. Subscribers get the current
// state right away and every change after it.
type Relay struct {
	state  *broadcast.Broadcaster[bool]
	logger *slog.Logger
}

var _ authtoken.LoginStateSource = (*Relay)(nil)

// NewRelay creates a relay holding the initial state.
func NewRelay(loggedIn bool, logger *slog.Logger) *Relay {
	return &Relay{state: broadcast.New(loggedIn), logger: logger}
}

// NewUnsetRelay creates a relay that has no state until the first Set.
func NewUnsetRelay(logger *slog.Logger) *Relay {
	return &Relay{state: broadcast.NewUnset[bool](), logger: logger}
}

// Set publishes a new login state. Repeating the current state is a no-op.
func (r *Relay) Set(loggedIn bool) {
	if r.state.Completed() {
		return
	}
	if current, ok := r.state.Value(); ok && current == loggedIn {
		return
	}
	r.state.Publish(loggedIn)
	if r.logger != nil {
		r.logger.Info("login state changed", "logged_in", loggedIn)
	}
}

// Current returns the latest state and whether one was ever set.
func (r *Relay) Current() (loggedIn bool, known bool) {
	return r.state.Value()
}

// Complete ends the stream. Subscribers get onDone and no further state.
func (r *Relay) Complete() {
	r.state.Complete()
}

// Subscribe implements authtoken.LoginStateSource.
func (r *Relay) Subscribe(onState func(loggedIn bool), onDone func()) (unsubscribe func()) {
	return r.state.Subscribe(onState, onDone)
}
