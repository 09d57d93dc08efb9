package broadcast

import "sync"

// Serial delivers values through a Broadcaster one at a time, in the order
// they were enqueued, without holding any caller lock during delivery.
//
// Owners enqueue while holding their own lock, so queue order matches
// mutation order, then call Flush after unlocking. Only one goroutine
// drains at a time: a Flush that finds another drainer (including a
// listener further up its own stack) returns at once and leaves its values
// to that drainer.
type Serial[T any] struct {
	b        *Broadcaster[T]
	mx       sync.Mutex
	pending  []T
	draining bool
}

func NewSerial[T any](b *Broadcaster[T]) *Serial[T] {
	return &Serial[T]{b: b}
}

func (s *Serial[T]) Enqueue(v T) {
	s.mx.Lock()
	s.pending = append(s.pending, v)
	s.mx.Unlock()
}

func (s *Serial[T]) Flush() {
	s.mx.Lock()
	if s.draining {
		s.mx.Unlock()
		return
	}
	s.draining = true
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.mx.Unlock()
		s.b.Publish(next)
		s.mx.Lock()
	}
	s.pending = nil
	s.draining = false
	s.mx.Unlock()
}
