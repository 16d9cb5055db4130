// Package broadcast implements a single-slot, replay-latest fan-out.
//
// A Broadcaster owns one value. Subscribers receive the current value when
// they attach and every later publish. Delivery is serialized: whichever
// goroutine finds the delivery queue idle drains it, so listeners never run
// concurrently with each other and always observe one global order, even when
// a listener publishes from inside its own callback.
package broadcast

import (
	"sync"
	"sync/atomic"
)

type event[T any] struct {
	seq    uint64
	value  T
	done   bool
	target *entry[T] // nil means every listener
}

type entry[T any] struct {
	onValue func(T)
	onDone  func()
	from    uint64 // first event sequence this listener may see
	active  atomic.Bool
}

// Broadcaster is a replay-latest value slot with serialized fan-out.
type Broadcaster[T any] struct {
	mu        sync.Mutex
	value     T
	has       bool
	gen       uint64
	completed bool
	entries   []*entry[T]
	queue     []event[T]
	seq       uint64
	draining  bool
}

// New creates a broadcaster holding initial.
func New[T any](initial T) *Broadcaster[T] {
	return &Broadcaster[T]{value: initial, has: true}
}

// NewUnset creates a broadcaster that replays nothing until the first Publish.
func NewUnset[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Value returns the current value and whether one was ever set.
func (b *Broadcaster[T]) Value() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.has
}

// Snapshot returns the current value with its generation. The generation
// changes on every publish.
func (b *Broadcaster[T]) Snapshot() (T, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.gen
}

// Publish replaces the value and notifies every listener. It returns the new
// generation. Publishing after Complete is ignored.
func (b *Broadcaster[T]) Publish(v T) uint64 {
	gen, _ := b.publish(v, 0, false)
	return gen
}

// PublishIf publishes v only if no publish happened since generation gen.
func (b *Broadcaster[T]) PublishIf(gen uint64, v T) (uint64, bool) {
	return b.publish(v, gen, true)
}

func (b *Broadcaster[T]) publish(v T, gen uint64, conditional bool) (uint64, bool) {
	b.mu.Lock()
	if b.completed || (conditional && b.gen != gen) {
		current := b.gen
		b.mu.Unlock()
		return current, false
	}
	b.value = v
	b.has = true
	b.gen++
	newGen := b.gen
	b.enqueueLocked(event[T]{value: v})
	start := b.claimLocked()
	b.mu.Unlock()

	if start {
		b.drain()
	}
	return newGen, true
}

// Complete notifies listeners that no value will follow.
func (b *Broadcaster[T]) Complete() {
	b.mu.Lock()
	if b.completed {
		b.mu.Unlock()
		return
	}
	b.completed = true
	b.enqueueLocked(event[T]{done: true})
	start := b.claimLocked()
	b.mu.Unlock()

	if start {
		b.drain()
	}
}

// Completed reports whether Complete was called.
func (b *Broadcaster[T]) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

// Subscribe attaches a listener. It receives the current value (if any) and
// then every publish, or only onDone when the broadcaster already completed.
// onDone may be nil. The returned function detaches the listener; it is safe
// to call more than once.
func (b *Broadcaster[T]) Subscribe(onValue func(T), onDone func()) (unsubscribe func()) {
	e := &entry[T]{onValue: onValue, onDone: onDone}
	e.active.Store(true)

	b.mu.Lock()
	b.entries = append(b.entries, e)
	switch {
	case b.completed:
		b.enqueueLocked(event[T]{done: true, target: e})
	case b.has:
		b.enqueueLocked(event[T]{value: b.value, target: e})
	}
	e.from = b.seq
	if !b.completed && !b.has {
		e.from = b.seq + 1
	}
	start := b.claimLocked()
	b.mu.Unlock()

	if start {
		b.drain()
	}

	return func() { b.remove(e) }
}

func (b *Broadcaster[T]) remove(e *entry[T]) {
	if !e.active.Swap(false) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, candidate := range b.entries {
		if candidate == e {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

func (b *Broadcaster[T]) detachLocked(targets []*entry[T]) {
	kept := b.entries[:0]
	for _, e := range b.entries {
		drop := false
		for _, t := range targets {
			if t == e {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, e)
		}
	}
	b.entries = kept
}

// enqueueLocked appends an event with the next sequence number.
func (b *Broadcaster[T]) enqueueLocked(ev event[T]) {
	b.seq++
	ev.seq = b.seq
	b.queue = append(b.queue, ev)
}

// claimLocked makes the caller the drainer if nobody is draining.
func (b *Broadcaster[T]) claimLocked() bool {
	if b.draining {
		return false
	}
	b.draining = true
	return true
}

func (b *Broadcaster[T]) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.queue = nil
			b.mu.Unlock()
			return
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]

		var targets []*entry[T]
		if ev.target != nil {
			targets = []*entry[T]{ev.target}
		} else {
			for _, e := range b.entries {
				if ev.seq >= e.from {
					targets = append(targets, e)
				}
			}
		}
		if ev.done {
			// Completed listeners are detached before their onDone runs.
			b.detachLocked(targets)
		}
		b.mu.Unlock()

		for _, e := range targets {
			if ev.done {
				if e.active.Swap(false) && e.onDone != nil {
					e.onDone()
				}
				continue
			}
			if e.active.Load() {
				e.onValue(ev.value)
			}
		}
	}
}
