package tokenprovider

import (
	"sync"

	"3tcapital/tokenbroker/internal/core/authtoken"
	"3tcapital/tokenbroker/internal/infrastructure/broadcast"
)

// LoginGate decides whether a fetch may start. It permits while the latest
// login state is true. When the login source completes without ever reporting
// true, the gate switches to the fallback source and only its true values
// permit from then on.
type LoginGate struct {
	source   authtoken.LoginStateSource
	fallback authtoken.LoginStateSource
	onLogin  func()
	onLogout func()

	mu            sync.Mutex
	permitted     bool
	sawLogin      bool
	usingFallback bool
	stopped       bool
	unsubscribe   []func()
}

// NewLoginGate creates a gate. onLogin runs when the gate opens and onLogout
// when it closes; both run outside the gate's lock and may be nil.
func NewLoginGate(source, fallback authtoken.LoginStateSource, onLogin, onLogout func()) *LoginGate {
	return &LoginGate{
		source:   source,
		fallback: fallback,
		onLogin:  onLogin,
		onLogout: onLogout,
	}
}

// Start subscribes to the login source.
func (g *LoginGate) Start() {
	unsubscribe := g.source.Subscribe(g.onSourceState, g.onSourceDone)
	g.track(unsubscribe)
}

// Permits reports whether a fetch may start now.
func (g *LoginGate) Permits() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.permitted && !g.stopped
}

// UsingFallback reports whether the login source completed without a login.
func (g *LoginGate) UsingFallback() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usingFallback
}

// Stop detaches from both sources and closes the gate for good.
func (g *LoginGate) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	g.permitted = false
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
}

func (g *LoginGate) track(unsubscribe func()) {
	g.mu.Lock()
	if !g.stopped {
		g.unsubscribe = append(g.unsubscribe, unsubscribe)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	unsubscribe()
}

func (g *LoginGate) onSourceState(loggedIn bool) {
	g.mu.Lock()
	if loggedIn {
		g.sawLogin = true
	}
	g.mu.Unlock()
	g.apply(loggedIn, false)
}

func (g *LoginGate) onSourceDone() {
	g.mu.Lock()
	if g.stopped || g.sawLogin || g.fallback == nil {
		// The last reported state stays in force.
		g.mu.Unlock()
		return
	}
	g.usingFallback = true
	g.mu.Unlock()

	unsubscribe := g.fallback.Subscribe(func(loggedIn bool) {
		g.apply(loggedIn, true)
	}, nil)
	g.track(unsubscribe)
}

func (g *LoginGate) apply(loggedIn, fromFallback bool) {
	g.mu.Lock()
	if g.stopped || g.usingFallback != fromFallback {
		g.mu.Unlock()
		return
	}
	was := g.permitted
	g.permitted = loggedIn
	g.mu.Unlock()

	switch {
	case loggedIn && !was && g.onLogin != nil:
		g.onLogin()
	case !loggedIn && was && g.onLogout != nil:
		g.onLogout()
	}
}

// signalSource exposes a broadcaster as a login-state source.
type signalSource struct {
	signal *broadcast.Broadcaster[bool]
}

func (s signalSource) Subscribe(onState func(bool), onDone func()) func() {
	return s.signal.Subscribe(onState, onDone)
}
