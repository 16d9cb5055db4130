// Package audit records every exchange with the token authority.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Exchange is the audit record of one call to the token authority. Header
// and body fields hold sanitized copies; credentials never reach storage.
type Exchange struct {
	ID              int64
	AttemptID       string
	Authority       string
	Operation       string
	RequestMethod   string
	RequestURL      string
	RequestHeaders  map[string]string
	RequestBody     json.RawMessage
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    json.RawMessage
	DurationMs      int64
	ErrorMessage    string
	CreatedAt       time.Time
}

// Succeeded reports whether the authority answered with a 2xx status.
func (e Exchange) Succeeded() bool {
	return e.ErrorMessage == "" && e.ResponseStatus != nil &&
		*e.ResponseStatus >= 200 && *e.ResponseStatus < 300
}

// Repository defines the contract for persisting and retrieving exchanges.
type Repository interface {
	// Save persists an exchange.
	Save(ctx context.Context, exchange Exchange) error

	// FindByAttemptID returns every exchange made for one fetch attempt,
	// newest first. A fetch with a retry or a fallback has several.
	FindByAttemptID(ctx context.Context, attemptID string) ([]Exchange, error)
}
