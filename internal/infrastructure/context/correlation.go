// Package context carries the correlation ID that ties log lines and audit
// rows together. Inbound requests use the chi request ID; token fetches use
// a fresh attempt ID.
package context

import (
	"context"

	"github.com/google/uuid"
)

type correlationKey struct{}

// WithCorrelationID returns ctx carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// GetCorrelationID returns the ID carried by ctx, or "".
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// NewAttempt tags ctx with a new random attempt ID. Every call made under
// the returned context shares it.
func NewAttempt(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithCorrelationID(ctx, id), id
}
