package broadcast_test

import (
	"sync"
	"testing"

	"github.com/hakim/scandeck/internal/broadcast"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mx  sync.Mutex
	got []int
}

func (r *recorder) Notify(v int) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.got = append(r.got, v)
}

func (r *recorder) values() []int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]int(nil), r.got...)
}

func TestSubscribeIsASet(t *testing.T) {
	t.Parallel()
	b := broadcast.New[int]("test")
	r := &recorder{}

	unsub1 := b.Subscribe(r)
	unsub2 := b.Subscribe(r)
	require.Equal(t, 1, b.Len())

	b.Publish(1)
	require.Equal(t, []int{1}, r.values())

	unsub2()
	require.Zero(t, b.Len(), "one unsubscribe removes the listener entirely")
	unsub1()
	unsub1()
	require.Zero(t, b.Len())

	b.Publish(2)
	require.Equal(t, []int{1}, r.values())
}

func TestStaleUnsubscribeKeepsNewRegistration(t *testing.T) {
	t.Parallel()
	b := broadcast.New[int]("test")
	r := &recorder{}

	unsub1 := b.Subscribe(r)
	unsub2 := b.Subscribe(r)
	unsub1()
	require.Zero(t, b.Len())

	unsub3 := b.Subscribe(r)
	unsub2()
	require.Equal(t, 1, b.Len())

	b.Publish(7)
	require.Equal(t, []int{7}, r.values())

	unsub3()
	require.Zero(t, b.Len())
}

func TestSubscribeFuncIsDistinct(t *testing.T) {
	t.Parallel()
	b := broadcast.New[int]("test")
	calls := 0
	fn := func(int) { calls++ }

	unsubA := b.SubscribeFunc(fn)
	b.SubscribeFunc(fn)
	require.Equal(t, 2, b.Len())

	b.Publish(0)
	require.Equal(t, 2, calls)

	unsubA()
	b.Publish(0)
	require.Equal(t, 3, calls)
}

func TestPublishOrderAndIsolation(t *testing.T) {
	t.Parallel()
	b := broadcast.New[int]("test")
	var order []string

	b.SubscribeFunc(func(int) { order = append(order, "first") })
	b.SubscribeFunc(func(int) {
		order = append(order, "panics")
		panic("boom")
	})
	b.SubscribeFunc(func(int) { order = append(order, "third") })

	require.NotPanics(t, func() { b.Publish(1) })
	require.Equal(t, []string{"first", "panics", "third"}, order)
}

func TestPublishUsesSnapshot(t *testing.T) {
	t.Parallel()
	b := broadcast.New[int]("test")
	late := &recorder{}
	var unsubSelf func()
	selfCalls := 0

	unsubSelf = b.SubscribeFunc(func(int) {
		selfCalls++
		unsubSelf()
		b.Subscribe(late)
	})

	b.Publish(1)
	require.Equal(t, 1, selfCalls)
	require.Empty(t, late.values(), "listener added during publish sees the next value only")

	b.Publish(2)
	require.Equal(t, 1, selfCalls)
	require.Equal(t, []int{2}, late.values())
}

func TestConcurrentUse(t *testing.T) {
	t.Parallel()
	var b broadcast.Broadcaster[int]
	r := &recorder{}
	b.Subscribe(r)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			unsub := b.SubscribeFunc(func(int) {})
			b.Publish(i)
			unsub()
		})
	}
	wg.Wait()

	require.Len(t, r.values(), 20)
	require.Equal(t, 1, b.Len())
}

func TestSerialKeepsOrderAcrossReentrantFlush(t *testing.T) {
	t.Parallel()
	b := broadcast.New[int]("test")
	s := broadcast.NewSerial(b)
	var got []int

	b.SubscribeFunc(func(v int) {
		got = append(got, v)
		if v == 1 {
			s.Enqueue(2)
			s.Flush() // returns at once, 2 is delivered by the outer drainer
			require.Equal(t, []int{1}, got)
		}
	})

	s.Enqueue(1)
	s.Flush()
	require.Equal(t, []int{1, 2}, got)

	s.Flush()
	require.Equal(t, []int{1, 2}, got, "nothing left to deliver")
}
