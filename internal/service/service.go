// Package service is the single entry point the CLI and the HTTP API use to
// start, inspect, control and export scans. It owns the registry, the phase
// runner and the notification center, and fans terminal scans out to the
// archive, the completion webhook and the artifact store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	scanlog "github.com/hakim/scandeck/internal/log"
	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/notify"
	"github.com/hakim/scandeck/internal/pipeline"
	"github.com/hakim/scandeck/internal/registry"
	"github.com/hakim/scandeck/internal/report"
)

var (
	// ErrNotFound is returned when no live or archived scan has the given id.
	ErrNotFound = registry.ErrNotFound

	// ErrClosed is returned when starting a scan after Close.
	ErrClosed = errors.New("service closed")
)

// sideEffectTimeout bounds archive, webhook and upload work for one scan.
const sideEffectTimeout = 30 * time.Second

// Archive keeps finished scans beyond the process lifetime.
type Archive interface {
	SaveScan(rec models.ScanRecord) error
	GetScan(id string) (*models.ScanRecord, error)
}

// ArtifactStore receives rendered reports of completed scans.
type ArtifactStore interface {
	Upload(ctx context.Context, doc report.Document, f report.Format) (string, error)
}

// Webhook is told about every scan that reaches a terminal state.
type Webhook interface {
	SendCompletion(ctx context.Context, rec models.ScanRecord) error
}

// Config wires the service. Everything except Handlers is optional.
type Config struct {
	// Handlers and Default implement the phases; see pipeline.RunnerConfig.
	Handlers     map[string]pipeline.Handler
	Default      pipeline.Handler
	PhaseTimeout time.Duration

	Scope pipeline.ScopeConfig

	Registry      *registry.Registry
	Notifications *notify.Center
	Archive       Archive
	Webhook       Webhook
	Artifacts     ArtifactStore
	// ArtifactFormats lists the formats uploaded for each completed scan.
	ArtifactFormats []report.Format

	Logger *slog.Logger
}

// Service is safe for concurrent use.
type Service struct {
	reg     *registry.Registry
	runner  *pipeline.Runner
	center  *notify.Center
	scope   pipeline.ScopeConfig
	archive Archive
	webhook Webhook
	store   ArtifactStore
	formats []report.Format
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	// life guards closed so that no driver is launched once Close has
	// started waiting. It is never held across registry calls.
	life   sync.Mutex
	closed bool

	// finMx guards the per-scan bookkeeping below. finished marks scans
	// whose terminal notification went out, settled those whose side
	// effects ran, and drivers counts live drivers per scan.
	finMx    sync.Mutex
	finished map[string]bool
	settled  map[string]bool
	drivers  map[string]int
	unsub    func()
}

func New(cfg Config) *Service {
	s := &Service{
		reg:      cfg.Registry,
		center:   cfg.Notifications,
		scope:    cfg.Scope,
		archive:  cfg.Archive,
		webhook:  cfg.Webhook,
		store:    cfg.Artifacts,
		formats:  cfg.ArtifactFormats,
		logger:   cfg.Logger,
		finished: make(map[string]bool),
		settled:  make(map[string]bool),
		drivers:  make(map[string]int),
	}
	if s.reg == nil {
		s.reg = registry.New()
	}
	if s.center == nil {
		s.center = notify.NewCenter()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.runner = pipeline.NewRunner(s.reg, pipeline.RunnerConfig{
		Handlers:     cfg.Handlers,
		Default:      cfg.Default,
		PhaseTimeout: cfg.PhaseTimeout,
		Logger:       s.logger,
	})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.unsub = s.reg.Subscribe(s.onRecord)
	return s
}

// StartScan starts a basic vulnerability scan of target and returns its id.
func (s *Service) StartScan(ctx context.Context, target string) (string, error) {
	return s.Start(ctx, models.KindBasic, target)
}

// StartComprehensiveScan starts the full web application assessment.
func (s *Service) StartComprehensiveScan(ctx context.Context, target string) (string, error) {
	return s.Start(ctx, models.KindComprehensive, target)
}

// StartSubdomainEnumeration starts a subdomain enumeration. The target is
// stored without scheme or path.
func (s *Service) StartSubdomainEnumeration(ctx context.Context, target string) (string, error) {
	return s.Start(ctx, models.KindSubdomain, target)
}

// Start creates a scan of the given kind and drives it in the background.
// It returns as soon as the record exists.
func (s *Service) Start(ctx context.Context, kind models.ScanKind, target string) (string, error) {
	tmpl, err := pipeline.GetTemplate(kind)
	if err != nil {
		return "", err
	}

	target = strings.TrimSpace(target)
	if kind == models.KindSubdomain {
		target = pipeline.CleanTarget(target)
	}
	if target == "" {
		return "", fmt.Errorf("%w: empty target", pipeline.ErrInvalidTarget)
	}
	if err := s.scope.Check(target); err != nil {
		return "", err
	}

	if s.isClosed() {
		return "", ErrClosed
	}

	id := s.reg.Create(kind, target, tmpl.Phases)
	s.logger.InfoContext(ctx, "scan created", "scan_id", id, "kind", kind, "target", target, "phases", len(tmpl.Phases))
	s.center.Add(models.Notification{
		Title:     startedTitle(kind),
		Message:   fmt.Sprintf("%s of %s started with %d phases", kindLabel(kind), target, len(tmpl.Phases)),
		Type:      models.NotificationInfo,
		ActionURL: scanURL(id),
		Metadata:  map[string]any{"scan_id": id, "kind": string(kind), "target": target},
	})
	if !s.launch(id) {
		return "", ErrClosed
	}
	return id, nil
}

func (s *Service) isClosed() bool {
	s.life.Lock()
	defer s.life.Unlock()
	return s.closed
}

// launch starts a driver for id unless the service is closed.
func (s *Service) launch(id string) bool {
	s.life.Lock()
	defer s.life.Unlock()
	if s.closed {
		return false
	}
	s.finMx.Lock()
	s.drivers[id]++
	s.finMx.Unlock()

	s.wg.Go(func() {
		ctx := scanlog.ContextAttrs(s.ctx, slog.String("scan_id", id))
		err := s.runner.Run(ctx, id)
		s.driverDone(id)
		switch {
		case err == nil:
		case errors.Is(err, registry.ErrLeaseHeld):
			s.logger.DebugContext(ctx, "previous driver still running")
		case errors.Is(err, registry.ErrTerminal):
			s.logger.DebugContext(ctx, "scan already finished")
		default:
			s.logger.WarnContext(ctx, "scan ended with error", "error", err)
		}
	})
	return true
}

func (s *Service) GetScan(id string) (models.ScanRecord, bool) {
	return s.reg.Get(id)
}

func (s *Service) GetAllScans() []models.ScanRecord {
	return s.reg.All()
}

// PauseScan pauses a scanning record. The phase in flight finishes first.
func (s *Service) PauseScan(id string) bool {
	ok := s.reg.Pause(id)
	if ok {
		s.logger.Info("scan paused", "scan_id", id)
	}
	return ok
}

// StopScan fails a scanning or paused record. It cannot be resumed.
func (s *Service) StopScan(id string) bool {
	ok := s.reg.Stop(id)
	if ok {
		s.logger.Info("scan stopped", "scan_id", id)
	}
	return ok
}

// ResumeScan restarts a paused record at its first unfinished phase.
func (s *Service) ResumeScan(id string) bool {
	if s.isClosed() || !s.reg.Resume(id) {
		return false
	}
	s.logger.Info("scan resumed", "scan_id", id)
	s.launch(id)
	return true
}

// Lookup returns the live record for id, falling back to the archive.
func (s *Service) Lookup(id string) (models.ScanRecord, error) {
	if rec, ok := s.reg.Get(id); ok {
		return rec, nil
	}
	if s.archive != nil {
		rec, err := s.archive.GetScan(id)
		if err != nil {
			return models.ScanRecord{}, fmt.Errorf("reading archive: %w", err)
		}
		if rec != nil {
			return *rec, nil
		}
	}
	return models.ScanRecord{}, fmt.Errorf("scan %s: %w", id, ErrNotFound)
}

// Report builds the report document for id.
func (s *Service) Report(id string) (report.Document, error) {
	rec, err := s.Lookup(id)
	if err != nil {
		return report.Document{}, err
	}
	return report.Build(rec), nil
}

// Export renders the report for id in the named format and returns the bytes
// with their content type.
func (s *Service) Export(id, format string) ([]byte, string, error) {
	f, err := report.ParseFormat(format)
	if err != nil {
		return nil, "", err
	}
	doc, err := s.Report(id)
	if err != nil {
		return nil, "", err
	}
	return report.Export(doc, f)
}

// OnScanUpdate registers fn for every record snapshot.
func (s *Service) OnScanUpdate(fn func(models.ScanRecord)) (unsubscribe func()) {
	return s.reg.Subscribe(fn)
}

// OnPhaseUpdate registers fn for phase start and completion events.
func (s *Service) OnPhaseUpdate(fn func(pipeline.PhaseEvent)) (unsubscribe func()) {
	return s.runner.OnPhase(fn)
}

func (s *Service) Notifications() *notify.Center {
	return s.center
}

// Close cancels every running phase and waits for all drivers and terminal
// side effects to finish. Interrupted scans end up failed.
func (s *Service) Close() {
	s.life.Lock()
	if s.closed {
		s.life.Unlock()
		return
	}
	s.closed = true
	s.life.Unlock()

	s.cancel()
	s.wg.Wait()
	s.unsub()
}

// onRecord runs on every published snapshot and reacts to the first
// terminal one of each scan. Side effects wait for the scan's drivers to
// exit: a phase in flight when the scan stops still merges its results, and
// those only show up in the registry, never in a published snapshot.
func (s *Service) onRecord(rec models.ScanRecord) {
	if !rec.Status.Terminal() {
		return
	}
	s.finMx.Lock()
	if s.finished[rec.ID] {
		s.finMx.Unlock()
		return
	}
	s.finished[rec.ID] = true
	driving := s.drivers[rec.ID] > 0
	s.finMx.Unlock()

	s.center.Add(terminalNotification(rec))
	if driving {
		return
	}

	// Once closed, run inline so that nothing outlives Close.
	s.life.Lock()
	if !s.closed {
		s.wg.Go(func() { s.settle(rec.ID) })
		s.life.Unlock()
		return
	}
	s.life.Unlock()
	s.settle(rec.ID)
}

// driverDone is called by a driver on exit. The last driver of a terminal
// scan settles it.
func (s *Service) driverDone(id string) {
	s.finMx.Lock()
	s.drivers[id]--
	last := s.drivers[id] == 0
	if last {
		delete(s.drivers, id)
	}
	s.finMx.Unlock()

	if rec, ok := s.reg.Get(id); last && ok && rec.Status.Terminal() {
		s.settle(id)
	}
}

// settle runs the terminal side effects of id once, against the record as
// it stands in the registry.
func (s *Service) settle(id string) {
	s.finMx.Lock()
	if s.settled[id] {
		s.finMx.Unlock()
		return
	}
	s.settled[id] = true
	s.finMx.Unlock()

	if s.archive == nil && s.webhook == nil && s.store == nil {
		return
	}
	rec, ok := s.reg.Get(id)
	if !ok {
		return
	}
	s.afterTerminal(rec)
}

func (s *Service) afterTerminal(rec models.ScanRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), sideEffectTimeout)
	defer cancel()
	ctx = scanlog.ContextAttrs(ctx, slog.String("scan_id", rec.ID))

	if s.archive != nil {
		if err := s.archive.SaveScan(rec); err != nil {
			s.logger.WarnContext(ctx, "archiving scan failed", "error", err)
		}
	}
	if s.webhook != nil {
		if err := s.webhook.SendCompletion(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "completion webhook failed", "error", err)
		}
	}
	if s.store != nil && rec.Status == models.StatusCompleted && len(s.formats) > 0 {
		doc := report.Build(rec)
		for _, f := range s.formats {
			url, err := s.store.Upload(ctx, doc, f)
			if err != nil {
				s.logger.WarnContext(ctx, "uploading report failed", "format", f, "error", err)
				continue
			}
			s.logger.InfoContext(ctx, "report uploaded", "format", f, "url", url)
		}
	}
}

func terminalNotification(rec models.ScanRecord) models.Notification {
	n := models.Notification{
		ActionURL: scanURL(rec.ID),
		Metadata: map[string]any{
			"scan_id": rec.ID,
			"kind":    string(rec.Kind),
			"target":  rec.Target,
		},
	}
	label := kindLabel(rec.Kind)
	switch {
	case rec.Status == models.StatusCompleted:
		risk := rec.Statistics.RiskLevel
		n.Title = strings.TrimSuffix(startedTitle(rec.Kind), " Started") + " Completed"
		n.Message = fmt.Sprintf("%s of %s completed: %d vulnerabilities, %s risk, score %d/100",
			label, rec.Target, len(rec.Results.Vulnerabilities), risk, rec.Statistics.Score)
		n.Type = models.NotificationSuccess
		if risk == models.SeverityCritical || risk == models.SeverityHigh {
			n.Type = models.NotificationWarning
		}
		n.Metadata["risk_level"] = string(risk)
		n.Metadata["score"] = rec.Statistics.Score
		n.Metadata["vulnerabilities"] = len(rec.Results.Vulnerabilities)
		if rec.Kind != models.KindBasic {
			n.Metadata["subdomains"] = len(rec.Results.Subdomains)
		}
	case rec.Error == registry.StoppedByUser:
		n.Title = "Scan Stopped"
		n.Message = fmt.Sprintf("%s of %s was stopped", label, rec.Target)
		n.Type = models.NotificationWarning
	default:
		n.Title = "Scan Failed"
		n.Message = fmt.Sprintf("%s of %s failed: %s", label, rec.Target, rec.Error)
		n.Type = models.NotificationError
		n.Metadata["error"] = rec.Error
	}
	return n
}

func startedTitle(kind models.ScanKind) string {
	switch kind {
	case models.KindComprehensive:
		return "Advanced Scan Started"
	case models.KindSubdomain:
		return "Subdomain Enumeration Started"
	default:
		return "Scan Started"
	}
}

func kindLabel(kind models.ScanKind) string {
	switch kind {
	case models.KindComprehensive:
		return "Comprehensive scan"
	case models.KindSubdomain:
		return "Subdomain enumeration"
	default:
		return "Vulnerability scan"
	}
}

func scanURL(id string) string {
	return "/v1/scans/" + id
}
