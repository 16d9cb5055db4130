// Package tokenprovider keeps one shared authentication token for any number
// of consumers.
//
// The token is fetched lazily when the first consumer subscribes, shared
// between everyone subscribed, refreshed automatically when it expires while
// someone is still subscribed, and dropped when the user logs out.
package tokenprovider

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"3tcapital/tokenbroker/internal/core/authtoken"
	"3tcapital/tokenbroker/internal/infrastructure/broadcast"
	"3tcapital/tokenbroker/internal/infrastructure/cache"
	"3tcapital/tokenbroker/internal/infrastructure/clock"
	"3tcapital/tokenbroker/internal/infrastructure/metrics"
	"3tcapital/tokenbroker/internal/infrastructure/security"
)

// Options configures a Provider.
type Options struct {
	// Refresh obtains new tokens. Required.
	Refresh authtoken.RefreshOperation
	// LoginState gates fetching. Required.
	LoginState authtoken.LoginStateSource
	// Clock defaults to the wall clock.
	Clock authtoken.Clock
	// Timers defaults to the wall clock. It must share Clock's time source.
	Timers  authtoken.TimerFactory
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Cache states reported by State.
const (
	StatusEmpty = "empty"
	StatusValid = "valid"
	// StatusExpired means subscribers were last handed a token that was
	// already expired and no fetch is running. The next subscriber, a
	// logout/login cycle, or Close moves the provider out of it.
	StatusExpired = "expired"
)

// State is a point-in-time view of the provider.
type State struct {
	Status           string    `json:"status"`
	ValidUntil       time.Time `json:"valid_until,omitzero"`
	RemainingSeconds int64     `json:"remaining_seconds,omitempty"`
	Subscribers      int       `json:"subscribers"`
	FetchInFlight    bool      `json:"fetch_in_flight"`
	TimerPending     bool      `json:"timer_pending"`
	LoggedIn         bool      `json:"logged_in"`
	UsingFallback    bool      `json:"using_fallback"`
}

// fetchCall is one in-flight fetch and the subscribers waiting on it.
type fetchCall struct {
	gen     uint64
	cancel  context.CancelFunc
	started time.Time
	waiters map[uint64]*Subscription
}

// Provider is the token orchestrator.
type Provider struct {
	clock     authtoken.Clock
	cache     *cache.TokenCache
	fetcher   *Fetcher
	scheduler *Scheduler
	gate      *LoginGate
	logouts   *broadcast.Broadcaster[bool]
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// dispatch runs a fetch. Tests replace it to fetch synchronously.
	dispatch func(func())

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	subs        map[uint64]*Subscription
	nextID      uint64
	call        *fetchCall
	expired     authtoken.Token // last expired fallback result handed out
	closed      bool
	stopMetrics func()
}

// New creates a provider and starts observing the login state.
func New(opts Options) (*Provider, error) {
	if opts.Refresh == nil {
		return nil, errors.New("refresh operation is required")
	}
	if opts.LoginState == nil {
		return nil, errors.New("login state source is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Timers == nil {
		opts.Timers = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		clock:     opts.Clock,
		cache:     cache.NewTokenCache(),
		fetcher:   NewFetcher(opts.Refresh, opts.Clock, opts.Logger, opts.Metrics),
		scheduler: NewScheduler(opts.Timers),
		logouts:   broadcast.NewUnset[bool](),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		dispatch:  func(f func()) { go f() },
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[uint64]*Subscription),
	}
	p.stopMetrics = p.cache.Subscribe(func(token authtoken.Token) {
		p.metrics.SetCacheValid(!token.IsEmpty())
	})
	p.gate = NewLoginGate(opts.LoginState, signalSource{signal: p.logouts}, p.handleLogin, p.handleLogout)
	p.gate.Start()

	return p, nil
}

// ObserveToken subscribes observer to the token. The observer receives the
// cached token when it is valid, or the result of a fetch started or joined
// on its behalf. Later refreshes are delivered as they happen. The stream
// only ends through Subscription.Close, a fetch failure reported to
// OnError, or Provider.Close.
func (p *Provider) ObserveToken(observer Observer) *Subscription {
	p.mu.Lock()
	p.nextID++
	s := newSubscription(p.nextID, p, observer)
	if p.closed {
		p.mu.Unlock()
		s.fail(authtoken.ErrProviderClosed)
		return s
	}
	p.subs[s.id] = s
	count := len(p.subs)
	p.mu.Unlock()

	p.metrics.SetSubscribers(count)
	p.logger.Debug("token subscriber attached", "subscriber_id", s.id, "subscribers", count)

	s.setUnsubscribe(p.cache.Subscribe(s.onCache))
	p.armIfIdle()
	return s
}

// Token waits for the first token value and returns it.
func (p *Provider) Token(ctx context.Context) (string, error) {
	tokens := make(chan string, 1)
	failures := make(chan error, 1)

	sub := p.ObserveToken(ObserverFuncs{
		Token: func(token string) {
			select {
			case tokens <- token:
			default:
			}
		},
		Error: func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	})
	defer sub.Close()

	select {
	case token := <-tokens:
		return token, nil
	case err := <-failures:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Watch subscribes until ctx is done. The token channel holds only the latest
// unread value. The error channel receives at most one error, after which the
// subscription has ended. Neither channel is closed.
func (p *Provider) Watch(ctx context.Context) (<-chan string, <-chan error) {
	tokens := make(chan string, 1)
	failures := make(chan error, 1)

	var mu sync.Mutex
	sub := p.ObserveToken(ObserverFuncs{
		Token: func(token string) {
			mu.Lock()
			defer mu.Unlock()
			select {
			case <-tokens:
			default:
			}
			tokens <- token
		},
		Error: func(err error) {
			failures <- err
		},
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.Done():
		}
		sub.Close()
	}()

	return tokens, failures
}

// State returns a snapshot of the provider.
func (p *Provider) State() State {
	token := p.cache.Current()

	p.mu.Lock()
	state := State{
		Status:        StatusEmpty,
		Subscribers:   len(p.subs),
		FetchInFlight: p.call != nil,
	}
	expired := p.expired
	p.mu.Unlock()

	state.TimerPending = p.scheduler.Pending()
	state.LoggedIn = p.gate.Permits()
	state.UsingFallback = p.gate.UsingFallback()

	now := p.clock.Now()
	switch {
	case token.Valid(now):
		state.Status = StatusValid
		state.ValidUntil = token.ValidUntil
		state.RemainingSeconds = int64(token.Remaining(now) / time.Second)
	case !expired.IsEmpty() && !state.FetchInFlight && state.Subscribers > 0:
		state.Status = StatusExpired
		state.ValidUntil = expired.ValidUntil
	}
	return state
}

// Close stops the provider. Every subscriber gets ErrProviderClosed.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	subs := make([]*Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.subs = make(map[uint64]*Subscription)
	p.abandonLocked()
	p.scheduler.Cancel()
	p.mu.Unlock()

	p.cancel()
	p.gate.Stop()
	p.stopMetrics()
	for _, s := range subs {
		s.fail(authtoken.ErrProviderClosed)
	}
	p.metrics.SetSubscribers(0)
	p.logger.Info("token provider closed", "subscribers", len(subs))
}

// ensureFetch makes sure s is served: by the cache if it already holds a
// valid token, by joining the in-flight fetch, or by starting a new one when
// the login gate permits.
func (p *Provider) ensureFetch(s *Subscription) {
	p.mu.Lock()
	if p.closed || p.subs[s.id] != s {
		p.mu.Unlock()
		return
	}

	token, gen := p.cache.Snapshot()
	if token.Valid(p.clock.Now()) {
		// The write that stored it is still being delivered.
		p.mu.Unlock()
		return
	}

	if p.call != nil {
		p.call.waiters[s.id] = s
		p.mu.Unlock()
		return
	}

	if !p.gate.Permits() {
		p.mu.Unlock()
		return
	}

	p.expired = authtoken.Empty
	ctx, cancel := context.WithCancel(p.ctx)
	call := &fetchCall{
		gen:     gen,
		cancel:  cancel,
		started: time.Now(),
		waiters: map[uint64]*Subscription{s.id: s},
	}
	p.call = call
	p.mu.Unlock()

	p.logger.Debug("starting token fetch", "subscriber_id", s.id)
	p.dispatch(func() { p.runFetch(ctx, call) })
}

func (p *Provider) runFetch(ctx context.Context, call *fetchCall) {
	token, err := p.fetcher.Fetch(ctx)
	call.cancel()

	p.mu.Lock()
	if p.call != call {
		p.mu.Unlock()
		p.metrics.RecordFetch(metrics.ResultDropped, time.Since(call.started))
		p.logger.Debug("dropping result of abandoned fetch")
		return
	}
	p.call = nil
	now := p.clock.Now()
	if err == nil && !token.Valid(now) {
		p.expired = token
	}
	waiters := make([]*Subscription, 0, len(call.waiters))
	for _, s := range call.waiters {
		if p.subs[s.id] == s {
			waiters = append(waiters, s)
		}
	}
	if err != nil {
		for _, s := range waiters {
			delete(p.subs, s.id)
		}
		p.cancelTimerIfIdleLocked()
	}
	count := len(p.subs)
	p.mu.Unlock()

	if err != nil {
		p.metrics.RecordFetch(metrics.ResultFailed, time.Since(call.started))
		p.metrics.SetSubscribers(count)
		p.logger.Error("token fetch failed", "waiters", len(waiters), "error", err)
		for _, s := range waiters {
			s.fail(err)
		}
		return
	}

	p.metrics.RecordFetch(metrics.ResultToken, time.Since(call.started))
	if !token.Valid(now) {
		// An already expired fallback result goes to the waiters as is. It is
		// not cached, so no expiry timer can loop on it and nothing refreshes
		// it until a new subscriber or a login arrives.
		p.logger.Warn("delivering token that is already expired",
			"valid_until", token.ValidUntil,
			"waiters", len(waiters),
			"status", StatusExpired,
		)
		for _, s := range waiters {
			s.deliver(token.Value)
		}
		return
	}

	gen, ok := p.cache.PublishIf(call.gen, token)
	if !ok {
		// The cache changed while fetching; whoever is still waiting decides again.
		p.logger.Debug("discarding stale fetch result")
		for _, s := range waiters {
			p.ensureFetch(s)
		}
		return
	}

	p.logger.Info("token refreshed",
		"token", security.RedactToken(token.Value),
		"valid_until", token.ValidUntil,
		"subscribers", count,
	)
	p.arm(now, token, gen)
}

// arm schedules the expiry of token unless the cache moved on or nobody is
// subscribed.
func (p *Provider) arm(now time.Time, token authtoken.Token, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.subs) == 0 {
		return
	}
	if _, current := p.cache.Snapshot(); current != gen {
		return
	}
	p.scheduler.Schedule(now, token.ValidUntil, func() { p.expire(gen) })
}

// armIfIdle arms the expiry timer for a valid cached token when no timer is
// pending, which is the case after the last subscriber left.
func (p *Provider) armIfIdle() {
	token, gen := p.cache.Snapshot()
	now := p.clock.Now()
	if !token.Valid(now) || p.scheduler.Pending() {
		return
	}
	p.arm(now, token, gen)
}

func (p *Provider) expire(gen uint64) {
	if _, ok := p.cache.PublishIf(gen, authtoken.Empty); !ok {
		return
	}
	p.metrics.RecordTimerFire()
	p.logger.Info("cached token expired")
}

func (p *Provider) handleLogin() {
	p.mu.Lock()
	subs := make([]*Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	p.logger.Info("login detected", "subscribers", len(subs))
	for _, s := range subs {
		p.ensureFetch(s)
	}
}

func (p *Provider) handleLogout() {
	p.mu.Lock()
	p.abandonLocked()
	p.expired = authtoken.Empty
	p.scheduler.Cancel()
	p.mu.Unlock()

	p.cache.Clear()
	p.logouts.Publish(false)
	p.metrics.RecordLogout()
	p.logger.Info("logout detected, token cache cleared")
}

// detach removes a closed subscription.
func (p *Provider) detach(s *Subscription) {
	p.mu.Lock()
	if p.subs[s.id] != s {
		p.mu.Unlock()
		return
	}
	delete(p.subs, s.id)
	if p.call != nil {
		delete(p.call.waiters, s.id)
	}
	p.cancelTimerIfIdleLocked()
	count := len(p.subs)
	p.mu.Unlock()

	p.metrics.SetSubscribers(count)
	p.logger.Debug("token subscriber detached", "subscriber_id", s.id, "subscribers", count)
}

// cancelTimerIfIdleLocked stops the expiry timer once nobody is subscribed.
// An in-flight fetch keeps running; its result stays cached for the next
// subscriber.
func (p *Provider) cancelTimerIfIdleLocked() {
	if len(p.subs) == 0 {
		p.scheduler.Cancel()
	}
}

func (p *Provider) abandonLocked() {
	if p.call == nil {
		return
	}
	p.call.cancel()
	p.call = nil
}
