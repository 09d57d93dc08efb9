package registry_test

import (
	"sync"
	"testing"
	"time"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/registry"
	"github.com/stretchr/testify/require"
)

var template = []models.PhaseSpec{
	{Name: "port_scan", Description: "ports"},
	{Name: "risk_assessment", Description: "risk"},
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mx sync.Mutex
	return func() time.Time {
		mx.Lock()
		defer mx.Unlock()
		t0 = t0.Add(time.Second)
		return t0
	}
}

// startScanning drives a freshly created record to scanning and gives the
// lease back.
func startScanning(t *testing.T, r *registry.Registry, id string) {
	t.Helper()
	lease, err := r.Acquire(id)
	require.NoError(t, err)
	require.True(t, r.Drive(id, lease, func(rec *models.ScanRecord) bool {
		rec.Status = models.StatusScanning
		return true
	}))
	r.Release(id, lease)
}

func TestCreate(t *testing.T) {
	t.Parallel()
	r := registry.New(registry.WithClock(fixedClock()))

	id := r.Create(models.KindBasic, "example.com", template)
	rec, ok := r.Get(id)
	require.True(t, ok)
	require.Equal(t, id, rec.ID)
	require.Equal(t, "example.com", rec.Target)
	require.Equal(t, models.StatusPending, rec.Status)
	require.Zero(t, rec.Progress)
	require.Len(t, rec.Phases, 2)
	require.Nil(t, rec.EndTime)

	_, ok = r.Get("missing")
	require.False(t, ok)
}

func TestIDsAreUnique(t *testing.T) {
	t.Parallel()
	r := registry.New()

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				r.Create(models.KindComprehensive, "example.com", template)
			}
		})
	}
	wg.Wait()

	all := r.All()
	require.Len(t, all, 400)
	seen := make(map[string]bool, len(all))
	for _, rec := range all {
		require.False(t, seen[rec.ID], "duplicate id %s", rec.ID)
		seen[rec.ID] = true
	}
}

func TestAllKeepsInsertionOrder(t *testing.T) {
	t.Parallel()
	r := registry.New()
	a := r.Create(models.KindBasic, "a.example.com", template)
	b := r.Create(models.KindSubdomain, "b.example.com", template)
	c := r.Create(models.KindBasic, "c.example.com", template)

	all := r.All()
	require.Equal(t, []string{a, b, c}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func TestGetReturnsSnapshot(t *testing.T) {
	t.Parallel()
	r := registry.New()
	id := r.Create(models.KindBasic, "example.com", template)

	rec, _ := r.Get(id)
	rec.Status = models.StatusCompleted
	rec.Phases[0].Status = models.PhaseCompleted

	fresh, _ := r.Get(id)
	require.Equal(t, models.StatusPending, fresh.Status)
	require.Equal(t, models.PhasePending, fresh.Phases[0].Status)
}

func TestControlTransitions(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    models.ScanStatus
		op       func(*registry.Registry, string) bool
		ok       bool
		then     models.ScanStatus
	}{
		{"pause scanning", models.StatusScanning, (*registry.Registry).Pause, true, models.StatusPaused},
		{"pause pending", models.StatusPending, (*registry.Registry).Pause, false, models.StatusPending},
		{"pause paused", models.StatusPaused, (*registry.Registry).Pause, false, models.StatusPaused},
		{"pause completed", models.StatusCompleted, (*registry.Registry).Pause, false, models.StatusCompleted},
		{"stop scanning", models.StatusScanning, (*registry.Registry).Stop, true, models.StatusFailed},
		{"stop paused", models.StatusPaused, (*registry.Registry).Stop, true, models.StatusFailed},
		{"stop pending", models.StatusPending, (*registry.Registry).Stop, false, models.StatusPending},
		{"stop failed", models.StatusFailed, (*registry.Registry).Stop, false, models.StatusFailed},
		{"resume paused", models.StatusPaused, (*registry.Registry).Resume, true, models.StatusScanning},
		{"resume scanning", models.StatusScanning, (*registry.Registry).Resume, false, models.StatusScanning},
		{"resume failed", models.StatusFailed, (*registry.Registry).Resume, false, models.StatusFailed},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			r := registry.New(registry.WithClock(fixedClock()))
			id := r.Create(models.KindBasic, "example.com", template)
			lease, err := r.Acquire(id)
			require.NoError(t, err)
			r.Drive(id, lease, func(rec *models.ScanRecord) bool {
				rec.Status = tt.given
				return false
			})

			before, _ := r.Get(id)
			require.Equal(t, tt.ok, tt.op(r, id))
			after, _ := r.Get(id)
			require.Equal(t, tt.then, after.Status)
			if !tt.ok {
				require.Equal(t, before, after, "a rejected control call leaves the record unchanged")
			}
		})
	}

	t.Run("unknown id", func(t *testing.T) {
		r := registry.New()
		require.False(t, r.Pause("nope"))
		require.False(t, r.Stop("nope"))
		require.False(t, r.Resume("nope"))
	})
}

func TestPauseThenStop(t *testing.T) {
	t.Parallel()
	r := registry.New(registry.WithClock(fixedClock()))
	id := r.Create(models.KindBasic, "example.com", template)
	startScanning(t, r, id)

	require.True(t, r.Pause(id))
	rec, _ := r.Get(id)
	require.Equal(t, models.StatusPaused, rec.Status)
	require.Nil(t, rec.EndTime)

	require.True(t, r.Stop(id))
	rec, _ = r.Get(id)
	require.Equal(t, models.StatusFailed, rec.Status)
	require.NotNil(t, rec.EndTime)
	require.True(t, !rec.EndTime.Before(rec.StartTime))
}

func TestLease(t *testing.T) {
	t.Parallel()
	r := registry.New()
	id := r.Create(models.KindBasic, "example.com", template)

	_, err := r.Acquire("missing")
	require.ErrorIs(t, err, registry.ErrNotFound)

	lease, err := r.Acquire(id)
	require.NoError(t, err)
	_, err = r.Acquire(id)
	require.ErrorIs(t, err, registry.ErrLeaseHeld)

	require.False(t, r.Drive(id, lease+1, func(*models.ScanRecord) bool {
		t.Fatal("foreign lease must not drive")
		return true
	}))

	// returning false hands the lease back
	require.False(t, r.Drive(id, lease, func(*models.ScanRecord) bool { return false }))
	second, err := r.Acquire(id)
	require.NoError(t, err)
	require.NotEqual(t, lease, second)

	// a stale release does not drop the new lease
	r.Release(id, lease)
	_, err = r.Acquire(id)
	require.ErrorIs(t, err, registry.ErrLeaseHeld)

	r.Drive(id, second, func(rec *models.ScanRecord) bool {
		rec.Status = models.StatusCompleted
		return false
	})
	_, err = r.Acquire(id)
	require.ErrorIs(t, err, registry.ErrTerminal)
}

func TestSubscribersSeeOrderedSnapshots(t *testing.T) {
	t.Parallel()
	r := registry.New()
	var got []models.ScanStatus
	unsubscribe := r.Subscribe(func(rec models.ScanRecord) {
		got = append(got, rec.Status)
		if rec.Status == models.StatusScanning {
			// re-entrant control call from inside a listener
			require.True(t, r.Pause(rec.ID))
			_, ok := r.Get(rec.ID)
			require.True(t, ok)
		}
	})
	defer unsubscribe()

	id := r.Create(models.KindBasic, "example.com", template)
	startScanning(t, r, id)
	require.True(t, r.Stop(id))

	require.Equal(t, []models.ScanStatus{
		models.StatusPending,
		models.StatusScanning,
		models.StatusPaused,
		models.StatusFailed,
	}, got)
}

func TestNoPublishOnceTerminal(t *testing.T) {
	t.Parallel()
	r := registry.New()
	id := r.Create(models.KindBasic, "example.com", template)
	lease, err := r.Acquire(id)
	require.NoError(t, err)
	r.Drive(id, lease, func(rec *models.ScanRecord) bool {
		rec.Status = models.StatusScanning
		return true
	})
	require.True(t, r.Stop(id))

	published := 0
	r.Subscribe(func(models.ScanRecord) { published++ })

	keep := r.Drive(id, lease, func(rec *models.ScanRecord) bool {
		rec.Phases[0].Findings = 3
		return !rec.Status.Terminal()
	})
	require.False(t, keep)
	require.Zero(t, published)

	rec, _ := r.Get(id)
	require.Equal(t, 3, rec.Phases[0].Findings, "late writes land without being published")
}
