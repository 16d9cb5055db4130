package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"3tcapital/tokenbroker/internal/core/authtoken"
)

// MockRefresh is a mock implementation of authtoken.RefreshOperation that
// counts its calls. RefreshFunc receives the 1-based call number.
type MockRefresh struct {
	RefreshFunc func(ctx context.Context, call int) (authtoken.Token, error)

	mu    sync.Mutex
	calls int
}

// Refresh calls the mock function if set, otherwise returns an error-free Empty token.
func (m *MockRefresh) Refresh(ctx context.Context) (authtoken.Token, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, call)
	}
	return authtoken.Empty, nil
}

// Calls returns how many times Refresh was invoked.
func (m *MockRefresh) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// FreshTokens returns a RefreshFunc that hands out a new random token valid
// for validity, measured from clk at call time.
func FreshTokens(clk authtoken.Clock, validity time.Duration) func(context.Context, int) (authtoken.Token, error) {
	return func(context.Context, int) (authtoken.Token, error) {
		return authtoken.New(uuid.NewString(), clk.Now().Add(validity)), nil
	}
}
