// Package schedule starts recurring scans of a fixed target list.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/hakim/scandeck/internal/models"
)

// Starter begins a scan and returns its id. GetScan is used to tell whether
// the previous scheduled scan of a target is still going.
type Starter interface {
	Start(ctx context.Context, kind models.ScanKind, target string) (string, error)
	GetScan(id string) (models.ScanRecord, bool)
}

// Config selects the recurrence and what to scan. Exactly one of Every and
// Cron must be set.
type Config struct {
	Every      time.Duration
	Cron       string
	Kind       models.ScanKind
	Targets    []string
	RunOnStart bool
}

type Scheduler struct {
	sched   gocron.Scheduler
	job     gocron.Job
	starter Starter
	kind    models.ScanKind
	targets []string
	logger  *slog.Logger

	// ctx is handed to every started scan.
	ctx context.Context

	// last maps a target to the id of its most recent scheduled scan.
	// Only startAll touches it and singleton mode keeps runs sequential.
	last map[string]string
}

// New builds a scheduler whose scans are started with ctx. Nothing runs
// until Run is called.
func New(ctx context.Context, starter Starter, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Targets) == 0 {
		return nil, errors.New("schedule has no targets")
	}

	var def gocron.JobDefinition
	switch {
	case cfg.Cron != "" && cfg.Every > 0:
		return nil, errors.New("schedule every and cron are mutually exclusive")
	case cfg.Cron != "":
		def = gocron.CronJob(cfg.Cron, false)
	case cfg.Every > 0:
		def = gocron.DurationJob(cfg.Every)
	default:
		return nil, errors.New("both cron and every are empty")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}

	s := &Scheduler{
		sched:   sched,
		starter: starter,
		kind:    cfg.Kind,
		targets: append([]string(nil), cfg.Targets...),
		logger:  logger,
		ctx:     ctx,
		last:    make(map[string]string),
	}

	// Singleton mode only serialises startAll itself. Scans run in the
	// background, so overlap per target is prevented in startAll.
	opts := []gocron.JobOption{
		gocron.WithName("scan " + string(cfg.Kind)),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if cfg.RunOnStart {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	s.job, err = sched.NewJob(def, gocron.NewTask(s.startAll), opts...)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.sched.Start()
	if next, err := s.job.NextRun(); err == nil {
		s.logger.InfoContext(ctx, "schedule started", "kind", s.kind, "targets", len(s.targets), "next_run", next)
	}

	<-ctx.Done()
	if err := s.sched.Shutdown(); err != nil {
		s.logger.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		return err
	}
	return nil
}

// startAll starts one scan per target. A target whose previous scheduled
// scan has not finished is skipped, and a target that fails to start is
// logged; neither prevents the others.
func (s *Scheduler) startAll() {
	ctx := s.ctx
	if ctx.Err() != nil {
		return
	}
	for _, target := range s.targets {
		if prev, ok := s.last[target]; ok {
			if rec, ok := s.starter.GetScan(prev); ok && !rec.Status.Terminal() {
				s.logger.InfoContext(ctx, "previous scheduled scan still running", "target", target, "scan_id", prev, "status", rec.Status)
				continue
			}
		}
		id, err := s.starter.Start(ctx, s.kind, target)
		if err != nil {
			s.logger.WarnContext(ctx, "scheduled scan not started", "target", target, "error", err)
			continue
		}
		s.last[target] = id
		s.logger.InfoContext(ctx, "scheduled scan started", "scan_id", id, "target", target, "kind", s.kind)
	}
}
