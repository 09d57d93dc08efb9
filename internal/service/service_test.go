package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/pipeline"
	"github.com/hakim/scandeck/internal/registry"
	"github.com/hakim/scandeck/internal/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sleeper waits d per phase and reports one vulnerability of sev.
func sleeper(d time.Duration, sev models.Severity, calls *atomic.Int32) pipeline.Handler {
	return pipeline.HandlerFunc(func(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error) {
		if calls != nil {
			calls.Add(1)
		}
		select {
		case <-ctx.Done():
			return pipeline.Outcome{}, ctx.Err()
		case <-time.After(d):
		}
		return pipeline.Outcome{
			Results: models.Results{Vulnerabilities: []models.Vulnerability{
				{ID: req.Phase.Name, Title: req.Phase.Name, Severity: sev, Category: "Injection"},
			}},
			Findings: 1,
		}, nil
	})
}

type fakeArchive struct {
	mx   sync.Mutex
	recs map[string]models.ScanRecord
}

func newFakeArchive(recs ...models.ScanRecord) *fakeArchive {
	a := &fakeArchive{recs: make(map[string]models.ScanRecord)}
	for _, r := range recs {
		a.recs[r.ID] = r
	}
	return a
}

func (a *fakeArchive) SaveScan(rec models.ScanRecord) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.recs[rec.ID] = rec
	return nil
}

func (a *fakeArchive) GetScan(id string) (*models.ScanRecord, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	rec, ok := a.recs[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

type fakeWebhook struct {
	mx   sync.Mutex
	sent []models.ScanRecord
}

func (w *fakeWebhook) SendCompletion(_ context.Context, rec models.ScanRecord) error {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.sent = append(w.sent, rec)
	return nil
}

type fakeStore struct {
	mx      sync.Mutex
	formats []report.Format
}

func (s *fakeStore) Upload(_ context.Context, doc report.Document, f report.Format) (string, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.formats = append(s.formats, f)
	return "http://minio.local/" + doc.ScanID + f.Ext(), nil
}

func newService(t *testing.T, cfg Config) *Service {
	t.Helper()
	if cfg.Default == nil {
		cfg.Default = sleeper(time.Second, models.SeverityMedium, nil)
	}
	cfg.Logger = slog.New(slog.DiscardHandler)
	s := New(cfg)
	t.Cleanup(s.Close)
	return s
}

func TestStartRunsToCompletion(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		archive := newFakeArchive()
		hook := &fakeWebhook{}
		store := &fakeStore{}
		s := newService(t, Config{
			Archive:         archive,
			Webhook:         hook,
			Artifacts:       store,
			ArtifactFormats: []report.Format{report.FormatJSON, report.FormatMarkdown},
		})

		id, err := s.StartScan(t.Context(), "  example.com ")
		require.NoError(t, err)
		require.Regexp(t, `^scan_`, id)

		rec, ok := s.GetScan(id)
		require.True(t, ok)
		assert.Equal(t, "example.com", rec.Target)

		time.Sleep(time.Minute)
		synctest.Wait()

		rec, ok = s.GetScan(id)
		require.True(t, ok)
		require.Equal(t, models.StatusCompleted, rec.Status)
		assert.Equal(t, models.SeverityMedium, rec.Statistics.RiskLevel)
		assert.Equal(t, 75, rec.Statistics.Score)
		assert.Len(t, s.GetAllScans(), 1)

		notes := s.Notifications().List()
		require.Len(t, notes, 2)
		assert.Equal(t, "Scan Completed", notes[0].Title)
		assert.Equal(t, models.NotificationSuccess, notes[0].Type)
		assert.Equal(t, "medium", notes[0].Metadata["risk_level"])
		assert.Equal(t, "Scan Started", notes[1].Title)
		assert.Equal(t, models.NotificationInfo, notes[1].Type)
		assert.Equal(t, "/v1/scans/"+id, notes[1].ActionURL)

		saved, err := archive.GetScan(id)
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, models.StatusCompleted, saved.Status)

		hook.mx.Lock()
		require.Len(t, hook.sent, 1)
		hook.mx.Unlock()

		store.mx.Lock()
		assert.Equal(t, []report.Format{report.FormatJSON, report.FormatMarkdown}, store.formats)
		store.mx.Unlock()
	})
}

func TestStartKinds(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := newService(t, Config{Default: sleeper(0, models.SeverityLow, nil)})

		id, err := s.StartSubdomainEnumeration(t.Context(), "https://example.com/login")
		require.NoError(t, err)
		require.Regexp(t, `^subenum_`, id)
		rec, _ := s.GetScan(id)
		assert.Equal(t, "example.com", rec.Target)
		assert.Equal(t, models.KindSubdomain, rec.Kind)

		id, err = s.StartComprehensiveScan(t.Context(), "example.com")
		require.NoError(t, err)
		rec, _ = s.GetScan(id)
		assert.Equal(t, models.KindComprehensive, rec.Kind)
		tmpl, err := pipeline.GetTemplate(models.KindComprehensive)
		require.NoError(t, err)
		assert.Len(t, rec.Phases, len(tmpl.Phases))

		synctest.Wait()
		var titles []string
		for _, n := range s.Notifications().List() {
			titles = append(titles, n.Title)
		}
		assert.ElementsMatch(t, []string{
			"Subdomain Enumeration Started", "Subdomain Enumeration Completed",
			"Advanced Scan Started", "Advanced Scan Completed",
		}, titles)
	})
}

func TestStartRejectsBadTargets(t *testing.T) {
	s := New(Config{
		Default: sleeper(0, models.SeverityLow, nil),
		Scope:   pipeline.ScopeConfig{AllowedDomains: []string{"*.example.com"}},
		Logger:  slog.New(slog.DiscardHandler),
	})
	defer s.Close()

	_, err := s.StartScan(t.Context(), "evil.org")
	require.ErrorIs(t, err, pipeline.ErrOutOfScope)

	_, err = s.StartScan(t.Context(), "   ")
	require.ErrorIs(t, err, pipeline.ErrInvalidTarget)

	_, err = s.Start(t.Context(), models.ScanKind("deep"), "app.example.com")
	require.ErrorIs(t, err, pipeline.ErrUnknownKind)

	assert.Empty(t, s.GetAllScans())
	assert.Empty(t, s.Notifications().List())
}

func TestStopNotifies(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		archive := newFakeArchive()
		s := newService(t, Config{Archive: archive})

		id, err := s.StartScan(t.Context(), "example.com")
		require.NoError(t, err)

		time.Sleep(1500 * time.Millisecond)
		require.True(t, s.StopScan(id))
		require.False(t, s.StopScan(id))
		synctest.Wait()

		rec, _ := s.GetScan(id)
		require.Equal(t, models.StatusFailed, rec.Status)
		assert.Equal(t, registry.StoppedByUser, rec.Error)

		notes := s.Notifications().List()
		require.Len(t, notes, 2)
		assert.Equal(t, "Scan Stopped", notes[0].Title)
		assert.Equal(t, models.NotificationWarning, notes[0].Type)

		// the in-flight phase finishes but no later notification appears
		time.Sleep(time.Minute)
		synctest.Wait()
		assert.Len(t, s.Notifications().List(), 2)
		saved, _ := archive.GetScan(id)
		require.NotNil(t, saved)
		assert.Equal(t, registry.StoppedByUser, saved.Error)
	})
}

func TestStoppedScanArchivesPhaseInFlight(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		archive := newFakeArchive()
		hook := &fakeWebhook{}
		s := newService(t, Config{Archive: archive, Webhook: hook})

		id, err := s.StartScan(t.Context(), "example.com")
		require.NoError(t, err)

		time.Sleep(1500 * time.Millisecond)
		require.True(t, s.StopScan(id))
		synctest.Wait()

		// nothing is persisted while the second phase is still running
		saved, _ := archive.GetScan(id)
		assert.Nil(t, saved)

		time.Sleep(time.Minute)
		synctest.Wait()

		live, _ := s.GetScan(id)
		require.Equal(t, models.StatusFailed, live.Status)
		require.Equal(t, models.PhaseCompleted, live.Phases[1].Status)
		require.Len(t, live.Results.Vulnerabilities, 2)

		saved, _ = archive.GetScan(id)
		require.NotNil(t, saved)
		assert.Equal(t, registry.StoppedByUser, saved.Error)
		assert.Equal(t, models.PhaseCompleted, saved.Phases[1].Status)
		assert.Equal(t, models.PhasePending, saved.Phases[2].Status)
		assert.Len(t, saved.Results.Vulnerabilities, 2)
		assert.Equal(t, 2, saved.Statistics.TotalFindings)

		hook.mx.Lock()
		defer hook.mx.Unlock()
		require.Len(t, hook.sent, 1)
		assert.Len(t, hook.sent[0].Results.Vulnerabilities, 2)
	})
}

func TestStopWhilePausedArchivesAtOnce(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		archive := newFakeArchive()
		s := newService(t, Config{Archive: archive})

		id, err := s.StartScan(t.Context(), "example.com")
		require.NoError(t, err)
		time.Sleep(1500 * time.Millisecond)
		require.True(t, s.PauseScan(id))
		time.Sleep(time.Minute)
		synctest.Wait()

		require.True(t, s.StopScan(id))
		synctest.Wait()
		saved, _ := archive.GetScan(id)
		require.NotNil(t, saved)
		assert.Equal(t, models.StatusFailed, saved.Status)
		assert.Len(t, saved.Results.Vulnerabilities, 2)
	})
}

func TestPauseAndResume(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var calls atomic.Int32
		s := newService(t, Config{Default: sleeper(time.Second, models.SeverityLow, &calls)})

		id, err := s.StartScan(t.Context(), "example.com")
		require.NoError(t, err)

		time.Sleep(1500 * time.Millisecond)
		require.True(t, s.PauseScan(id))
		require.False(t, s.PauseScan(id))

		time.Sleep(time.Minute)
		synctest.Wait()
		rec, _ := s.GetScan(id)
		require.Equal(t, models.StatusPaused, rec.Status)
		assert.Equal(t, models.PhaseCompleted, rec.Phases[1].Status)
		assert.Equal(t, models.PhasePending, rec.Phases[2].Status)

		require.True(t, s.ResumeScan(id))
		require.False(t, s.ResumeScan(id))

		time.Sleep(time.Minute)
		synctest.Wait()
		rec, _ = s.GetScan(id)
		require.Equal(t, models.StatusCompleted, rec.Status)
		assert.Equal(t, int32(5), calls.Load())
		assert.Len(t, rec.Results.Vulnerabilities, 5)
	})
}

func TestExport(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		end := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
		old := models.ScanRecord{
			ID:        "scan_archived",
			Kind:      models.KindBasic,
			Target:    "old.example.com",
			Status:    models.StatusCompleted,
			StartTime: end.Add(-5 * time.Minute),
			EndTime:   &end,
		}
		s := newService(t, Config{
			Default: sleeper(0, models.SeverityHigh, nil),
			Archive: newFakeArchive(old),
		})

		_, _, err := s.Export("scan_missing", "json")
		require.ErrorIs(t, err, ErrNotFound)

		_, _, err = s.Export("scan_archived", "docx")
		require.ErrorIs(t, err, report.ErrUnknownFormat)

		data, ctype, err := s.Export("scan_archived", "md")
		require.NoError(t, err)
		assert.Equal(t, "text/markdown; charset=utf-8", ctype)
		assert.Contains(t, string(data), "old.example.com")

		id, err := s.StartScan(t.Context(), "example.com")
		require.NoError(t, err)
		synctest.Wait()

		doc, err := s.Report(id)
		require.NoError(t, err)
		assert.Equal(t, models.SeverityHigh, doc.Executive.RiskLevel)

		data, ctype, err = s.Export(id, "")
		require.NoError(t, err)
		assert.Equal(t, "application/json", ctype)
		assert.Contains(t, string(data), id)
	})
}

func TestUpdatesAreBroadcast(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := newService(t, Config{})

		var mx sync.Mutex
		var statuses []models.ScanStatus
		var phases []string
		defer s.OnScanUpdate(func(rec models.ScanRecord) {
			mx.Lock()
			defer mx.Unlock()
			statuses = append(statuses, rec.Status)
		})()
		defer s.OnPhaseUpdate(func(ev pipeline.PhaseEvent) {
			mx.Lock()
			defer mx.Unlock()
			if ev.Phase.Status == models.PhaseCompleted {
				phases = append(phases, ev.Phase.Name)
			}
		})()

		_, err := s.StartScan(t.Context(), "example.com")
		require.NoError(t, err)
		time.Sleep(time.Minute)
		synctest.Wait()

		mx.Lock()
		defer mx.Unlock()
		require.NotEmpty(t, statuses)
		assert.Equal(t, models.StatusPending, statuses[0])
		assert.Equal(t, models.StatusCompleted, statuses[len(statuses)-1])
		assert.Equal(t, []string{"port_scan", "service_detection", "vulnerability_scan", "subdomain_enum", "risk_assessment"}, phases)
	})
}

func TestCloseInterruptsRunningScans(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		archive := newFakeArchive()
		s := New(Config{
			Default: sleeper(time.Hour, models.SeverityLow, nil),
			Archive: archive,
			Logger:  slog.New(slog.DiscardHandler),
		})

		id, err := s.StartScan(t.Context(), "example.com")
		require.NoError(t, err)
		time.Sleep(time.Second)

		s.Close()
		s.Close()

		rec, _ := s.GetScan(id)
		require.Equal(t, models.StatusFailed, rec.Status)
		assert.Contains(t, rec.Error, "context canceled")

		notes := s.Notifications().List()
		require.NotEmpty(t, notes)
		assert.Equal(t, "Scan Failed", notes[0].Title)
		assert.Equal(t, models.NotificationError, notes[0].Type)

		saved, _ := archive.GetScan(id)
		require.NotNil(t, saved)
		assert.Equal(t, models.StatusFailed, saved.Status)

		_, err = s.StartScan(t.Context(), "example.com")
		require.ErrorIs(t, err, ErrClosed)
		assert.False(t, s.ResumeScan(id))
	})
}

func TestTerminalNotification(t *testing.T) {
	end := time.Now()
	tests := []struct {
		name      string
		rec       models.ScanRecord
		wantTitle string
		wantType  models.NotificationType
	}{
		{
			name: "completed low risk",
			rec: models.ScanRecord{Kind: models.KindSubdomain, Status: models.StatusCompleted, EndTime: &end,
				Statistics: models.Statistics{RiskLevel: models.SeverityLow, Score: 99}},
			wantTitle: "Subdomain Enumeration Completed",
			wantType:  models.NotificationSuccess,
		},
		{
			name: "completed critical risk",
			rec: models.ScanRecord{Kind: models.KindBasic, Status: models.StatusCompleted, EndTime: &end,
				Statistics: models.Statistics{RiskLevel: models.SeverityCritical}},
			wantTitle: "Scan Completed",
			wantType:  models.NotificationWarning,
		},
		{
			name:      "stopped",
			rec:       models.ScanRecord{Kind: models.KindBasic, Status: models.StatusFailed, Error: registry.StoppedByUser},
			wantTitle: "Scan Stopped",
			wantType:  models.NotificationWarning,
		},
		{
			name:      "failed",
			rec:       models.ScanRecord{Kind: models.KindComprehensive, Status: models.StatusFailed, Error: "phase exploded"},
			wantTitle: "Scan Failed",
			wantType:  models.NotificationError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := terminalNotification(tt.rec)
			assert.Equal(t, tt.wantTitle, n.Title)
			assert.Equal(t, tt.wantType, n.Type)
		})
	}
}
