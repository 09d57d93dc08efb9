package cve

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/notify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC)

func newDB(opts ...Option) (*Database, *notify.Center) {
	center := notify.NewCenter()
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return New(center, opts...), center
}

func TestLookup(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		db, center := newDB()

		start := time.Now()
		rec, err := db.Lookup(t.Context(), "cve-2024-50625")
		require.NoError(t, err)
		assert.Equal(t, 500*time.Millisecond, time.Since(start))
		assert.Equal(t, "CVE-2024-50625", rec.ID)
		assert.Equal(t, models.SeverityCritical, rec.Severity)
		assert.Equal(t, []string{"CWE-434", "CWE-78"}, rec.Weaknesses)

		rec.Weaknesses[0] = "changed"
		again, err := db.Lookup(t.Context(), "CVE-2024-50625")
		require.NoError(t, err)
		assert.Equal(t, "CWE-434", again.Weaknesses[0])

		notes := center.List()
		require.Len(t, notes, 2)
		assert.Equal(t, "CVE Found", notes[0].Title)
		assert.Equal(t, models.NotificationError, notes[0].Type)
		assert.Equal(t, "Found CVE CVE-2024-50625 with severity CRITICAL", notes[0].Message)
	})
}

func TestLookupSeverityDecidesNotificationType(t *testing.T) {
	db, center := newDB(WithDelayScale(0))

	_, err := db.Lookup(t.Context(), "CVE-2024-50624")
	require.NoError(t, err)
	assert.Equal(t, models.NotificationWarning, center.List()[0].Type)

	_, err = db.Lookup(t.Context(), "CVE-1999-0001")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, center.List(), 1, "a miss adds no notification")
}

func TestSearch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		db, center := newDB()

		start := time.Now()
		got, err := db.Search(t.Context(), "VULNERABILITY", 0)
		require.NoError(t, err)
		assert.Equal(t, 800*time.Millisecond, time.Since(start))
		require.Len(t, got, 5)
		assert.Equal(t, "CVE-2024-50623", got[0].ID)

		got, err = db.Search(t.Context(), "webhook", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "CVE-2024-50628", got[0].ID)

		got, err = db.Search(t.Context(), "vulnerability", 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = db.Search(t.Context(), "kubernetes", 0)
		require.NoError(t, err)
		assert.Empty(t, got)

		notes := center.List()
		require.Len(t, notes, 3, "an empty result adds no notification")
		assert.Equal(t, "CVE Search Results", notes[0].Title)
		assert.Equal(t, `Found 2 CVEs matching "vulnerability"`, notes[0].Message)
		assert.Equal(t, models.NotificationInfo, notes[0].Type)
	})
}

func TestRecent(t *testing.T) {
	db, center := newDB(WithDelayScale(0))

	got, err := db.Recent(t.Context(), 3)
	require.NoError(t, err)
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"CVE-2024-50623", "CVE-2024-50624", "CVE-2024-50625"}, ids)

	got, err = db.Recent(t.Context(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Equal(t, "CVE-2024-50623", got[0].ID)
	assert.Equal(t, "CVE-2024-50628", got[5].ID)

	notes := center.List()
	require.Len(t, notes, 2)
	assert.Equal(t, "Recent CVEs Updated", notes[0].Title)
	assert.Equal(t, "Found 6 CVEs published in the last 7 days", notes[0].Message)
}

func TestRecentCapsAtTen(t *testing.T) {
	var pool []Record
	for i := range 15 {
		pool = append(pool, Record{ID: "CVE-X-" + string(rune('a'+i)), Published: now.Add(-time.Duration(i) * time.Hour)})
	}
	db, _ := newDB(WithDelayScale(0), WithPool(pool))

	got, err := db.Recent(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, "CVE-X-a", got[0].ID)
}

func TestQueriesHonourContext(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		db, center := newDB()
		ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
		defer cancel()

		_, err := db.Lookup(ctx, "CVE-2024-50623")
		require.ErrorIs(t, err, context.DeadlineExceeded)
		_, err = db.Search(ctx, "sql", 0)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		_, err = db.Recent(ctx, 7)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Empty(t, center.List())
	})
}
