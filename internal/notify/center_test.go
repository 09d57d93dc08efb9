package notify_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/notify"
	"github.com/stretchr/testify/require"
)

func titles(ns []models.Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Title
	}
	return out
}

func TestCapKeepsNewest(t *testing.T) {
	t.Parallel()
	c := notify.NewCenter()

	for i := 1; i <= 51; i++ {
		c.Add(models.Notification{Title: fmt.Sprintf("n%d", i), Type: models.NotificationInfo})
	}

	list := c.List()
	require.Len(t, list, notify.DefaultMax)
	require.Equal(t, "n51", list[0].Title, "newest first")
	require.Equal(t, "n2", list[49].Title)
	require.NotContains(t, titles(list), "n1")
}

func TestCapIsConfigurable(t *testing.T) {
	t.Parallel()
	c := notify.NewCenter(notify.WithMax(3))
	for i := range 10 {
		c.Add(models.Notification{Title: fmt.Sprint(i)})
	}
	require.Equal(t, []string{"9", "8", "7"}, titles(c.List()))
}

func TestAddStampsRecord(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	c := notify.NewCenter(notify.WithClock(func() time.Time { return at }))

	n := c.Add(models.Notification{
		ID:       "ignored",
		Title:    "Scan started",
		Read:     true,
		Metadata: map[string]any{"scan_id": "scan_1"},
	})
	require.NotEqual(t, "ignored", n.ID)
	require.False(t, n.Read)
	require.Equal(t, at, n.Timestamp)

	other := c.Add(models.Notification{Title: "second"})
	require.NotEqual(t, n.ID, other.ID)

	n.Metadata["scan_id"] = "changed"
	require.Equal(t, "scan_1", c.List()[1].Metadata["scan_id"])
}

func TestUnreadAccounting(t *testing.T) {
	t.Parallel()
	c := notify.NewCenter()
	a := c.Add(models.Notification{Title: "a"})
	c.Add(models.Notification{Title: "b"})
	c.Add(models.Notification{Title: "c"})
	require.Equal(t, 3, c.UnreadCount())

	require.True(t, c.MarkRead(a.ID))
	require.True(t, c.MarkRead(a.ID), "marking twice is fine")
	require.Equal(t, 2, c.UnreadCount())
	require.False(t, c.MarkRead("missing"))

	c.MarkAllRead()
	require.Zero(t, c.UnreadCount())
	for _, n := range c.List() {
		require.True(t, n.Read)
	}

	c.ClearAll()
	require.Empty(t, c.List())
	require.Zero(t, c.UnreadCount())
}

func TestSubscribersGetSnapshots(t *testing.T) {
	t.Parallel()
	c := notify.NewCenter()
	var got [][]models.Notification
	unsubscribe := c.Subscribe(func(list []models.Notification) {
		got = append(got, list)
	})

	a := c.Add(models.Notification{Title: "a", Metadata: map[string]any{"k": "v"}})
	c.Add(models.Notification{Title: "b"})
	c.MarkRead(a.ID)
	c.MarkRead("missing")
	c.MarkAllRead()
	c.ClearAll()
	unsubscribe()
	c.Add(models.Notification{Title: "after"})

	require.Len(t, got, 5, "one snapshot per effective change")
	require.Equal(t, []string{"a"}, titles(got[0]))
	require.Equal(t, []string{"b", "a"}, titles(got[1]))
	require.True(t, got[2][1].Read)
	require.Empty(t, got[4])

	// snapshots are detached from the center
	got[1][1].Metadata["k"] = "changed"
	require.Equal(t, "v", got[0][0].Metadata["k"])
}
