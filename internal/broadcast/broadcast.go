// Package broadcast implements the fan-out notifier shared by the scan
// registry, the phase runner and the notification center.
//
// A Broadcaster holds a set of listeners and synchronously delivers every
// published value to each of them. Publish works on a snapshot of the set
// taken when it starts, so listeners may subscribe or unsubscribe from
// inside a callback. A panicking listener is recovered and logged; the
// remaining listeners still receive the value. Nothing is buffered or
// replayed to late subscribers.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// Listener receives published values.
type Listener[T any] interface {
	Notify(T)
}

// ListenerFunc adapts a function to a Listener. Function values are not
// comparable, so subscribe them through SubscribeFunc.
type ListenerFunc[T any] func(T)

func (f ListenerFunc[T]) Notify(v T) { f(v) }

type funcListener[T any] struct {
	fn func(T)
}

func (l *funcListener[T]) Notify(v T) { l.fn(v) }

type entry[T any] struct {
	l   Listener[T]
	gen uint64
}

// Broadcaster is safe for concurrent use. The zero value is ready to use.
type Broadcaster[T any] struct {
	name      string
	mx        sync.RWMutex
	listeners []entry[T]
	gen       uint64
}

// New returns a Broadcaster whose name is attached to recovered panic logs.
func New[T any](name string) *Broadcaster[T] {
	return &Broadcaster[T]{name: name}
}

// Subscribe registers l and returns a function removing it. Registering a
// listener that is already present is a no-op; any unsubscribe handed out
// for that registration removes it entirely. Once removed, a later
// Subscribe of the same l is a new registration that stale unsubscribe
// functions cannot touch. l must be comparable, typically a pointer.
func (b *Broadcaster[T]) Subscribe(l Listener[T]) (unsubscribe func()) {
	b.mx.Lock()
	var gen uint64
	if i := b.index(l); i >= 0 {
		gen = b.listeners[i].gen
	} else {
		b.gen++
		gen = b.gen
		b.listeners = append(b.listeners, entry[T]{l: l, gen: gen})
	}
	b.mx.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(l, gen) })
	}
}

// SubscribeFunc registers fn as a new, distinct subscription.
func (b *Broadcaster[T]) SubscribeFunc(fn func(T)) (unsubscribe func()) {
	return b.Subscribe(&funcListener[T]{fn: fn})
}

// Publish delivers v to every listener registered when the call starts, in
// registration order.
func (b *Broadcaster[T]) Publish(v T) {
	b.mx.RLock()
	snapshot := make([]Listener[T], len(b.listeners))
	for i, e := range b.listeners {
		snapshot[i] = e.l
	}
	b.mx.RUnlock()

	for _, l := range snapshot {
		var pc panics.Catcher
		pc.Try(func() { l.Notify(v) })
		if r := pc.Recovered(); r != nil {
			slog.Error("broadcast listener panicked", "broadcaster", b.name, "panic", r.Value)
		}
	}
}

// Len returns the number of registered listeners.
func (b *Broadcaster[T]) Len() int {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return len(b.listeners)
}

func (b *Broadcaster[T]) remove(l Listener[T], gen uint64) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if i := b.index(l); i >= 0 && b.listeners[i].gen == gen {
		b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
	}
}

func (b *Broadcaster[T]) index(l Listener[T]) int {
	for i, cur := range b.listeners {
		if cur.l == l {
			return i
		}
	}
	return -1
}
