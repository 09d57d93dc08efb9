package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/pipeline"
	"github.com/hakim/scandeck/internal/registry"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fivePhases = []models.PhaseSpec{
	{Name: "port_scan"},
	{Name: "service_detection"},
	{Name: "vulnerability_scan"},
	{Name: "subdomain_enum"},
	{Name: "risk_assessment"},
}

// work sleeps d (honouring ctx) and reports one vulnerability of sev.
func work(d time.Duration, sev models.Severity) pipeline.Handler {
	return pipeline.HandlerFunc(func(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error) {
		select {
		case <-ctx.Done():
			return pipeline.Outcome{}, ctx.Err()
		case <-time.After(d):
		}
		return pipeline.Outcome{
			Results: models.Results{Vulnerabilities: []models.Vulnerability{
				{ID: req.Phase.Name, Title: req.Phase.Name, Severity: sev},
			}},
			Findings: 1,
			Requests: 10,
		}, nil
	})
}

func uniform(d time.Duration, sev models.Severity) map[string]pipeline.Handler {
	h := make(map[string]pipeline.Handler)
	for _, p := range fivePhases {
		h[p.Name] = work(d, sev)
	}
	return h
}

// collector records every published snapshot.
type collector struct {
	mx    sync.Mutex
	snaps []models.ScanRecord
	evs   []pipeline.PhaseEvent
}

func (c *collector) record(rec models.ScanRecord) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.snaps = append(c.snaps, rec)
}

func (c *collector) phase(ev pipeline.PhaseEvent) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.evs = append(c.evs, ev)
}

func setup(t *testing.T, cfg pipeline.RunnerConfig) (*registry.Registry, *pipeline.Runner, *collector) {
	t.Helper()
	reg := registry.New()
	runner := pipeline.NewRunner(reg, cfg)
	c := &collector{}
	t.Cleanup(reg.Subscribe(c.record))
	t.Cleanup(runner.OnPhase(c.phase))
	return reg, runner, c
}

func TestRunCompletes(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, runner, c := setup(t, pipeline.RunnerConfig{Handlers: uniform(time.Second, models.SeverityMedium)})
		id := reg.Create(models.KindBasic, "example.com", fivePhases)

		require.NoError(t, runner.Run(t.Context(), id))

		rec, ok := reg.Get(id)
		require.True(t, ok)
		require.Equal(t, models.StatusCompleted, rec.Status)
		require.Equal(t, 100, rec.Progress)
		require.Empty(t, rec.CurrentPhase)
		require.NotNil(t, rec.EndTime)
		require.False(t, rec.EndTime.Before(rec.StartTime))
		require.Equal(t, 5*time.Second, rec.Duration())

		require.Len(t, rec.Results.Vulnerabilities, 5)
		require.Equal(t, models.SeverityMedium, rec.Statistics.RiskLevel)
		require.Equal(t, 75, rec.Statistics.Score)
		require.Equal(t, 5, rec.Statistics.TotalFindings)
		require.Equal(t, 50, rec.Statistics.TotalRequests)
		for _, p := range rec.Phases {
			require.Equal(t, models.PhaseCompleted, p.Status)
			require.Equal(t, 100, p.Progress)
			require.Equal(t, 1, p.Findings)
			require.Equal(t, time.Second, p.Duration)
		}

		// progress never goes backwards while scanning
		last := 0
		for _, s := range c.snaps {
			if s.Status != models.StatusScanning {
				continue
			}
			require.GreaterOrEqual(t, s.Progress, last)
			last = s.Progress
		}
		require.Equal(t, []int{0, 20, 40, 60, 80, 100}, distinctProgress(c.snaps))

		// a phase never starts before the previous one has completed
		for k := 0; k+1 < len(rec.Phases); k++ {
			require.False(t, rec.Phases[k].CompletedAt.After(*rec.Phases[k+1].StartedAt))
		}

		require.Len(t, c.evs, 10, "one start and one completion event per phase")
		require.Equal(t, models.PhaseRunning, c.evs[0].Phase.Status)
		require.Equal(t, models.PhaseCompleted, c.evs[1].Phase.Status)
	})
}

func distinctProgress(snaps []models.ScanRecord) []int {
	var out []int
	for _, s := range snaps {
		if len(out) == 0 || out[len(out)-1] != s.Progress {
			out = append(out, s.Progress)
		}
	}
	return out
}

func TestPauseWaitsForInFlightPhase(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, runner, _ := setup(t, pipeline.RunnerConfig{Handlers: uniform(time.Second, models.SeverityLow)})
		id := reg.Create(models.KindBasic, "example.com", fivePhases)

		done := make(chan error, 1)
		go func() { done <- runner.Run(t.Context(), id) }()

		time.Sleep(1500 * time.Millisecond) // middle of phase 2
		require.True(t, reg.Pause(id))

		require.NoError(t, <-done)
		rec, _ := reg.Get(id)
		require.Equal(t, models.StatusPaused, rec.Status)
		require.Equal(t, models.PhaseCompleted, rec.Phases[1].Status, "the in-flight phase still completes")
		require.Equal(t, models.PhasePending, rec.Phases[2].Status, "no new phase starts while paused")
		require.Len(t, rec.Results.Vulnerabilities, 2)
		require.Nil(t, rec.EndTime)

		require.True(t, reg.Stop(id))
		rec, _ = reg.Get(id)
		require.Equal(t, models.StatusFailed, rec.Status)
		require.NotNil(t, rec.EndTime)
	})
}

func TestResumeSkipsCompletedPhases(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var calls atomic.Int32
		counted := make(map[string]pipeline.Handler)
		for name, h := range uniform(time.Second, models.SeverityLow) {
			counted[name] = pipeline.HandlerFunc(func(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error) {
				calls.Add(1)
				return h.Run(ctx, req)
			})
		}
		reg, runner, _ := setup(t, pipeline.RunnerConfig{Handlers: counted})
		id := reg.Create(models.KindBasic, "example.com", fivePhases)

		done := make(chan error, 1)
		go func() { done <- runner.Run(t.Context(), id) }()
		time.Sleep(500 * time.Millisecond)
		require.True(t, reg.Pause(id))
		require.NoError(t, <-done)

		require.True(t, reg.Resume(id))
		require.NoError(t, runner.Run(t.Context(), id))

		rec, _ := reg.Get(id)
		require.Equal(t, models.StatusCompleted, rec.Status)
		require.EqualValues(t, 5, calls.Load(), "each phase runs exactly once")
		require.Len(t, rec.Results.Vulnerabilities, 5)
	})
}

func TestResumeWhileDriverStillRunning(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, runner, _ := setup(t, pipeline.RunnerConfig{Handlers: uniform(time.Second, models.SeverityLow)})
		id := reg.Create(models.KindBasic, "example.com", fivePhases)

		done := make(chan error, 1)
		go func() { done <- runner.Run(t.Context(), id) }()
		time.Sleep(500 * time.Millisecond)
		require.True(t, reg.Pause(id))
		require.True(t, reg.Resume(id))

		err := runner.Run(t.Context(), id)
		require.ErrorIs(t, err, registry.ErrLeaseHeld, "the first driver keeps the scan")

		require.NoError(t, <-done)
		rec, _ := reg.Get(id)
		require.Equal(t, models.StatusCompleted, rec.Status)
	})
}

func TestStopIsTerminal(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, runner, c := setup(t, pipeline.RunnerConfig{Handlers: uniform(time.Second, models.SeverityHigh)})
		id := reg.Create(models.KindBasic, "example.com", fivePhases)

		done := make(chan error, 1)
		go func() { done <- runner.Run(t.Context(), id) }()
		time.Sleep(2500 * time.Millisecond) // middle of phase 3
		require.True(t, reg.Stop(id))

		c.mx.Lock()
		published, events := len(c.snaps), len(c.evs)
		c.mx.Unlock()

		require.NoError(t, <-done)

		c.mx.Lock()
		require.Equal(t, published, len(c.snaps), "nothing is published once the scan is terminal")
		require.Equal(t, events, len(c.evs))
		c.mx.Unlock()

		rec, _ := reg.Get(id)
		require.Equal(t, models.StatusFailed, rec.Status)
		require.Equal(t, models.PhaseCompleted, rec.Phases[2].Status, "the in-flight phase keeps its results")
		require.Equal(t, models.PhasePending, rec.Phases[3].Status)
		require.Len(t, rec.Results.Vulnerabilities, 3)
		require.Equal(t, 40, rec.Progress, "progress is frozen at the stop")
		require.Equal(t, 2500*time.Millisecond, rec.Duration())
	})
}

func TestFailingPhaseFailsScan(t *testing.T) {
	var testCases = []struct {
		scenario string
		given    pipeline.Handler
		then     string
	}{
		{
			scenario: "error",
			given: pipeline.HandlerFunc(func(context.Context, pipeline.Request) (pipeline.Outcome, error) {
				return pipeline.Outcome{}, errors.New("connection reset")
			}),
			then: "connection reset",
		},
		{
			scenario: "panic",
			given: pipeline.HandlerFunc(func(context.Context, pipeline.Request) (pipeline.Outcome, error) {
				panic("nil map")
			}),
			then: "panicked: nil map",
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				handlers := uniform(time.Second, models.SeverityLow)
				handlers["vulnerability_scan"] = tt.given
				reg, runner, c := setup(t, pipeline.RunnerConfig{Handlers: handlers})
				id := reg.Create(models.KindBasic, "example.com", fivePhases)

				err := runner.Run(t.Context(), id)
				require.ErrorContains(t, err, tt.then)

				rec, _ := reg.Get(id)
				require.Equal(t, models.StatusFailed, rec.Status)
				require.NotNil(t, rec.EndTime)
				require.Contains(t, rec.Error, tt.then)
				require.Equal(t, models.PhaseFailed, rec.Phases[2].Status)
				require.Equal(t, models.PhasePending, rec.Phases[3].Status)
				require.Len(t, rec.Results.Vulnerabilities, 2, "earlier results are kept, later phases never run")

				last := c.snaps[len(c.snaps)-1]
				require.Equal(t, models.StatusFailed, last.Status)
			})
		})
	}
}

func TestUnknownPhaseUsesDefault(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var defaults atomic.Int32
		reg, runner, _ := setup(t, pipeline.RunnerConfig{
			Handlers: map[string]pipeline.Handler{"port_scan": work(time.Second, models.SeverityLow)},
			Default: pipeline.HandlerFunc(func(context.Context, pipeline.Request) (pipeline.Outcome, error) {
				defaults.Add(1)
				return pipeline.Outcome{Findings: 2}, nil
			}),
		})
		id := reg.Create(models.KindComprehensive, "example.com", []models.PhaseSpec{{Name: "port_scan"}, {Name: "mystery"}})

		require.NoError(t, runner.Run(t.Context(), id))
		rec, _ := reg.Get(id)
		require.Equal(t, models.StatusCompleted, rec.Status)
		require.EqualValues(t, 1, defaults.Load())
		require.Equal(t, 2, rec.Phases[1].Findings)
		require.Equal(t, 3, rec.Statistics.TotalFindings)

		id = reg.Create(models.KindBasic, "example.com", []models.PhaseSpec{{Name: "mystery"}})
		runner = pipeline.NewRunner(reg, pipeline.RunnerConfig{})
		require.NoError(t, runner.Run(t.Context(), id))
		rec, _ = reg.Get(id)
		require.Equal(t, models.StatusCompleted, rec.Status)
	})
}

func TestPhaseTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		stalled := pipeline.HandlerFunc(func(context.Context, pipeline.Request) (pipeline.Outcome, error) {
			time.Sleep(time.Minute) // ignores its context
			return pipeline.Outcome{}, nil
		})
		reg, runner, _ := setup(t, pipeline.RunnerConfig{
			Handlers:     map[string]pipeline.Handler{"port_scan": stalled},
			PhaseTimeout: 5 * time.Second,
		})
		id := reg.Create(models.KindBasic, "example.com", fivePhases)

		start := time.Now()
		err := runner.Run(t.Context(), id)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, 5*time.Second, time.Since(start))

		rec, _ := reg.Get(id)
		require.Equal(t, models.StatusFailed, rec.Status)
		require.Contains(t, rec.Phases[0].Error, "timed out")

		// let the abandoned handler return before the bubble ends
		time.Sleep(time.Minute)
		synctest.Wait()
	})
}

func TestCancelledContextFailsScan(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, runner, _ := setup(t, pipeline.RunnerConfig{Handlers: uniform(time.Second, models.SeverityLow)})
		id := reg.Create(models.KindBasic, "example.com", fivePhases)

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() { done <- runner.Run(ctx, id) }()
		time.Sleep(1500 * time.Millisecond)
		cancel()

		require.ErrorIs(t, <-done, context.Canceled)
		rec, _ := reg.Get(id)
		require.Equal(t, models.StatusFailed, rec.Status)
		require.NotNil(t, rec.EndTime)
		require.Len(t, rec.Results.Vulnerabilities, 1)
	})
}

func TestRunRejectsUnknownAndFinished(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, runner, _ := setup(t, pipeline.RunnerConfig{Handlers: uniform(0, models.SeverityLow)})
		require.ErrorIs(t, runner.Run(t.Context(), "missing"), registry.ErrNotFound)

		id := reg.Create(models.KindBasic, "example.com", fivePhases)
		require.NoError(t, runner.Run(t.Context(), id))
		require.ErrorIs(t, runner.Run(t.Context(), id), registry.ErrTerminal)
	})
}
