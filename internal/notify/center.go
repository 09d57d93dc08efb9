// Package notify keeps the user-facing notification feed.
package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hakim/scandeck/internal/broadcast"
	"github.com/hakim/scandeck/internal/models"
)

// DefaultMax is the number of notifications kept when no cap is configured.
const DefaultMax = 50

// Center is a bounded, newest-first list of notifications. Every change is
// published to subscribers as a full snapshot of the list.
type Center struct {
	mx    sync.Mutex
	max   int
	items []models.Notification
	now   func() time.Time

	updates *broadcast.Broadcaster[[]models.Notification]
	out     *broadcast.Serial[[]models.Notification]
}

type Option func(*Center)

// WithMax caps the list at n entries. Values below 1 keep the default.
func WithMax(n int) Option {
	return func(c *Center) {
		if n > 0 {
			c.max = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

func NewCenter(opts ...Option) *Center {
	c := &Center{
		max:     DefaultMax,
		now:     time.Now,
		updates: broadcast.New[[]models.Notification]("notifications"),
	}
	c.out = broadcast.NewSerial(c.updates)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add stamps n with a fresh id and the current time, marks it unread and
// puts it at the front of the list, evicting the oldest entries beyond the
// cap. The stored notification is returned.
func (c *Center) Add(n models.Notification) models.Notification {
	n = n.Clone()
	n.ID = "notif_" + uuid.NewString()
	n.Read = false

	c.mx.Lock()
	n.Timestamp = c.now()
	c.items = slices.Insert(c.items, 0, n)
	if len(c.items) > c.max {
		clear(c.items[c.max:])
		c.items = c.items[:c.max]
	}
	c.enqueue()
	c.mx.Unlock()

	c.out.Flush()
	return n.Clone()
}

// MarkRead flags one notification as read. It reports whether id exists.
func (c *Center) MarkRead(id string) bool {
	c.mx.Lock()
	i := slices.IndexFunc(c.items, func(n models.Notification) bool { return n.ID == id })
	if i < 0 {
		c.mx.Unlock()
		return false
	}
	c.items[i].Read = true
	c.enqueue()
	c.mx.Unlock()

	c.out.Flush()
	return true
}

func (c *Center) MarkAllRead() {
	c.mutate(func() {
		for i := range c.items {
			c.items[i].Read = true
		}
	})
}

func (c *Center) ClearAll() {
	c.mutate(func() {
		c.items = nil
	})
}

// List returns the notifications newest first.
func (c *Center) List() []models.Notification {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.snapshot()
}

// UnreadCount counts unread notifications at call time.
func (c *Center) UnreadCount() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	n := 0
	for _, item := range c.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// Subscribe registers fn for full-list snapshots after every change.
func (c *Center) Subscribe(fn func([]models.Notification)) (unsubscribe func()) {
	return c.updates.SubscribeFunc(fn)
}

func (c *Center) mutate(fn func()) {
	c.mx.Lock()
	fn()
	c.enqueue()
	c.mx.Unlock()

	c.out.Flush()
}

// enqueue must be called with mx held.
func (c *Center) enqueue() {
	c.out.Enqueue(c.snapshot())
}

func (c *Center) snapshot() []models.Notification {
	out := make([]models.Notification, len(c.items))
	for i, n := range c.items {
		out[i] = n.Clone()
	}
	return out
}
