package tokenprovider

import (
	"sync"

	"3tcapital/tokenbroker/internal/core/authtoken"
)

// Observer receives token values from a subscription.
type Observer interface {
	// OnToken is called with each new token value. Consecutive duplicates are
	// not repeated.
	OnToken(token string)
	// OnError ends the subscription. It is called at most once.
	OnError(err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Token func(token string)
	Error func(err error)
}

// OnToken implements Observer.
func (o ObserverFuncs) OnToken(token string) {
	if o.Token != nil {
		o.Token(token)
	}
}

// OnError implements Observer.
func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

// Subscription is one consumer's attachment to a Provider.
type Subscription struct {
	id       uint64
	provider *Provider
	observer Observer

	mu          sync.Mutex
	closed      bool
	last        string
	hasLast     bool
	err         error
	done        chan struct{}
	unsubscribe func()
}

func newSubscription(id uint64, p *Provider, observer Observer) *Subscription {
	return &Subscription{
		id:       id,
		provider: p,
		observer: observer,
		done:     make(chan struct{}),
	}
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	if !s.finish(nil) {
		return
	}
	s.provider.detach(s)
}

// Done is closed once the subscription ends, by Close or by an error.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the subscription, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// onCache reacts to a cache write: a valid token is delivered, anything else
// asks the provider for a fetch.
func (s *Subscription) onCache(token authtoken.Token) {
	if token.Valid(s.provider.clock.Now()) {
		s.deliver(token.Value)
		return
	}
	s.provider.ensureFetch(s)
}

func (s *Subscription) deliver(value string) {
	s.mu.Lock()
	if s.closed || (s.hasLast && s.last == value) {
		s.mu.Unlock()
		return
	}
	s.last = value
	s.hasLast = true
	s.mu.Unlock()

	s.observer.OnToken(value)
}

// fail ends the subscription with err. The caller has already removed it from
// the provider.
func (s *Subscription) fail(err error) {
	if !s.finish(err) {
		return
	}
	s.observer.OnError(err)
}

// setUnsubscribe records the cache detach function, running it right away if
// the subscription already ended.
func (s *Subscription) setUnsubscribe(fn func()) {
	s.mu.Lock()
	if !s.closed {
		s.unsubscribe = fn
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// finish marks the subscription closed and detaches it from the cache. It
// reports false when the subscription had already ended.
func (s *Subscription) finish(err error) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.err = err
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	close(s.done)
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return true
}
