package health

import (
	"context"
	"time"
)

// Component and overall states.
const (
	StatusUp       = "UP"
	StatusDown     = "DOWN"
	StatusDegraded = "DEGRADED"
)

// Status captures the state of the service at a moment in time.
type Status struct {
	Service     string      `json:"service"`
	Version     string      `json:"version"`
	Environment string      `json:"environment"`
	Status      string      `json:"status"`
	StartedAt   time.Time   `json:"startedAt"`
	Uptime      string      `json:"uptime"`
	UptimeSecs  int64       `json:"uptimeSeconds"`
	Components  []Component `json:"components,omitempty"`
}

// Component is the outcome of one check.
type Component struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Details any    `json:"details,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Checker reports on one dependency or subsystem.
type Checker interface {
	Check(ctx context.Context) Component
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) Component

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context) Component {
	return f(ctx)
}

// Overall folds component states: UP when every component is up, DEGRADED otherwise.
func Overall(components []Component) string {
	for _, c := range components {
		if c.Status != StatusUp {
			return StatusDegraded
		}
	}
	return StatusUp
}
