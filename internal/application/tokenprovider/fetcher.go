package tokenprovider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"3tcapital/tokenbroker/internal/core/authtoken"
	appctx "3tcapital/tokenbroker/internal/infrastructure/context"
	"3tcapital/tokenbroker/internal/infrastructure/metrics"
)

// maxRefreshAttempts bounds the first refresh step: one call plus one retry.
const maxRefreshAttempts = 2

// Fetcher performs one logical token fetch against the refresh operation.
type Fetcher struct {
	refresh authtoken.RefreshOperation
	clock   authtoken.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewFetcher creates a fetcher. m may be nil.
func NewFetcher(refresh authtoken.RefreshOperation, clk authtoken.Clock, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		refresh: refresh,
		clock:   clk,
		logger:  logger,
		metrics: m,
	}
}

// Fetch obtains a token. A failed refresh is retried once. When the refresh
// succeeds with a token that is already invalid, the refresh runs exactly one
// more time and its result is returned as is, valid or not.
func (f *Fetcher) Fetch(ctx context.Context) (authtoken.Token, error) {
	ctx, attemptID := appctx.NewAttempt(ctx)
	logger := f.logger.With("attempt_id", attemptID)

	var (
		token authtoken.Token
		err   error
	)
	for attempt := 1; attempt <= maxRefreshAttempts; attempt++ {
		token, err = f.call(ctx)
		if err == nil {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return authtoken.Empty, ctxErr
		}
		logger.Warn("token refresh failed",
			"attempt", attempt,
			"max_attempts", maxRefreshAttempts,
			"error", err,
		)
	}
	if err != nil {
		return authtoken.Empty, fmt.Errorf("%w after %d attempts: %w", authtoken.ErrRefreshFailed, maxRefreshAttempts, err)
	}

	now := f.clock.Now()
	if token.Valid(now) {
		return token, nil
	}

	logger.Warn("refreshed token is not valid, refreshing once more",
		"valid_until", token.ValidUntil,
		"now", now,
	)

	token, err = f.call(ctx)
	if err != nil {
		return authtoken.Empty, fmt.Errorf("%w: fallback refresh: %w", authtoken.ErrRefreshFailed, err)
	}
	return token, nil
}

func (f *Fetcher) call(ctx context.Context) (authtoken.Token, error) {
	start := time.Now()
	token, err := f.refresh.Refresh(ctx)
	if err != nil {
		f.metrics.RecordRefreshCall(metrics.OutcomeError)
		return authtoken.Empty, err
	}
	outcome := metrics.OutcomeSuccess
	if !token.Valid(f.clock.Now()) {
		outcome = metrics.OutcomeExpired
	}
	f.metrics.RecordRefreshCall(outcome)
	f.logger.Debug("refresh call completed",
		"attempt_id", appctx.GetCorrelationID(ctx),
		"valid_until", token.ValidUntil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return token, nil
}
