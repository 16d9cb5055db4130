package testutil

import (
	"context"
	"sync"

	"3tcapital/tokenbroker/internal/core/audit"
)

// MockAuditRepo is an in-memory audit.Repository. Saves are safe from any
// goroutine; when SavedChan is set every saved exchange is also sent on it
// without blocking.
type MockAuditRepo struct {
	SaveErr   error
	FindErr   error
	SavedChan chan audit.Exchange

	mu    sync.Mutex
	saved []audit.Exchange
}

// Save records the exchange.
func (m *MockAuditRepo) Save(_ context.Context, exchange audit.Exchange) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}

	m.mu.Lock()
	exchange.ID = int64(len(m.saved) + 1)
	m.saved = append(m.saved, exchange)
	m.mu.Unlock()

	if m.SavedChan != nil {
		select {
		case m.SavedChan <- exchange:
		default:
		}
	}
	return nil
}

// FindByAttemptID returns the saved exchanges for attemptID, newest first.
func (m *MockAuditRepo) FindByAttemptID(_ context.Context, attemptID string) ([]audit.Exchange, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var results []audit.Exchange
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].AttemptID == attemptID {
			results = append(results, m.saved[i])
		}
	}
	return results, nil
}

// Saved returns a copy of everything saved so far.
func (m *MockAuditRepo) Saved() []audit.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Exchange(nil), m.saved...)
}

var _ audit.Repository = (*MockAuditRepo)(nil)
