package tokenprovider

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"3tcapital/tokenbroker/internal/adapters/loginstate"
	"3tcapital/tokenbroker/internal/core/authtoken"
	"3tcapital/tokenbroker/internal/infrastructure/clock"
	"3tcapital/tokenbroker/internal/testutil"
)

const tokenValidity = 5 * time.Minute

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingObserver collects everything a subscription delivers.
type recordingObserver struct {
	mu     sync.Mutex
	values []string
	errs   []error
}

func (o *recordingObserver) OnToken(token string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values = append(o.values, token)
}

func (o *recordingObserver) OnError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) Values() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.values...)
}

func (o *recordingObserver) Last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.values) == 0 {
		return ""
	}
	return o.values[len(o.values)-1]
}

func (o *recordingObserver) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errs...)
}

type fixture struct {
	clock    *clock.Manual
	relay    *loginstate.Relay
	refresh  *testutil.MockRefresh
	provider *Provider
}

// newFixture builds a provider on a logical clock. Fetches run synchronously
// on the goroutine that needs them.
func newFixture(t *testing.T, loggedIn bool, refreshFunc func(*clock.Manual) *testutil.MockRefresh) *fixture {
	t.Helper()

	clk := clock.NewManual(start)
	relay := loginstate.NewRelay(loggedIn, testutil.NewNullLogger())
	refresh := refreshFunc(clk)

	p, err := New(Options{
		Refresh:    refresh,
		LoginState: relay,
		Clock:      clk,
		Timers:     clk,
		Logger:     testutil.NewNullLogger(),
	})
	require.NoError(t, err)
	p.dispatch = func(f func()) { f() }
	t.Cleanup(p.Close)

	return &fixture{clock: clk, relay: relay, refresh: refresh, provider: p}
}

func freshRefresh(validity time.Duration) func(*clock.Manual) *testutil.MockRefresh {
	return func(clk *clock.Manual) *testutil.MockRefresh {
		return &testutil.MockRefresh{RefreshFunc: testutil.FreshTokens(clk, validity)}
	}
}

func (f *fixture) observe() (*recordingObserver, *Subscription) {
	obs := &recordingObserver{}
	return obs, f.provider.ObserveToken(obs)
}

func expiredToken(clk authtoken.Clock, value string) authtoken.Token {
	return authtoken.New(value, clk.Now().Add(-time.Second))
}
