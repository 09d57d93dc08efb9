package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hakim/scandeck/internal/broadcast"
	scanlog "github.com/hakim/scandeck/internal/log"
	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/registry"
)

// Request is everything a phase handler gets to see.
type Request struct {
	ScanID string
	Kind   models.ScanKind
	Target string
	Phase  models.PhaseSpec

	// Index is 0-based; Total is the number of phases in the scan.
	Index, Total int

	// Snapshot is the record as it was when the phase started.
	Snapshot models.ScanRecord
}

// Outcome is the slice of results a phase produced.
type Outcome struct {
	Results  models.Results
	Findings int
	Requests int
}

// Handler performs the work of one named phase.
type Handler interface {
	Run(ctx context.Context, req Request) (Outcome, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, req Request) (Outcome, error)

func (f HandlerFunc) Run(ctx context.Context, req Request) (Outcome, error) { return f(ctx, req) }

// PhaseEvent is published whenever a phase starts or finishes.
type PhaseEvent struct {
	ScanID string             `json:"scan_id"`
	Index  int                `json:"index"`
	Phase  models.PhaseRecord `json:"phase"`
}

// RunnerConfig controls how a Runner executes phases.
type RunnerConfig struct {
	// Handlers maps a phase name to its implementation.
	Handlers map[string]Handler

	// Default runs phases missing from Handlers. Nil means a no-op phase.
	Default Handler

	// PhaseTimeout caps the wall-clock time of a single phase. A phase that
	// overruns fails the scan. Zero means no limit beyond the caller's context.
	PhaseTimeout time.Duration

	Logger *slog.Logger
}

// Runner drives scan records through their phases.
type Runner struct {
	reg      *registry.Registry
	handlers map[string]Handler
	fallback Handler
	timeout  time.Duration
	events   *broadcast.Broadcaster[PhaseEvent]
	logger   *slog.Logger
}

func NewRunner(reg *registry.Registry, cfg RunnerConfig) *Runner {
	r := &Runner{
		reg:      reg,
		handlers: cfg.Handlers,
		fallback: cfg.Default,
		timeout:  cfg.PhaseTimeout,
		events:   broadcast.New[PhaseEvent]("phase-updates"),
		logger:   cfg.Logger,
	}
	if r.fallback == nil {
		r.fallback = HandlerFunc(func(context.Context, Request) (Outcome, error) { return Outcome{}, nil })
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// OnPhase registers fn for phase start and completion events.
func (r *Runner) OnPhase(fn func(PhaseEvent)) (unsubscribe func()) {
	return r.events.SubscribeFunc(fn)
}

// Run drives the record id until it completes, fails, or stops being in the
// scanning state. Phases already completed are skipped, so calling Run again
// after a pause picks up at the first unfinished phase.
//
// Status is consulted between phases only: a pause or stop that arrives
// while a phase is running lets that phase finish and keep its results.
//
// Run returns nil when the scan completes or is paused or stopped, the
// phase error when a phase fails, and a registry error when the record
// cannot be driven at all.
func (r *Runner) Run(ctx context.Context, id string) error {
	lease, err := r.reg.Acquire(id)
	if err != nil {
		return err
	}
	defer r.reg.Release(id, lease)

	snap, ok := r.reg.Get(id)
	if !ok {
		return fmt.Errorf("run %s: %w", id, registry.ErrNotFound)
	}
	ctx = scanlog.ContextAttrs(ctx, slog.String("scan_id", id))
	total := len(snap.Phases)

	for i, phase := range snap.Phases {
		if phase.Status == models.PhaseCompleted {
			r.logger.DebugContext(ctx, "skipping phase", "phase", phase.Name, "reason", "already completed")
			continue
		}
		if err := ctx.Err(); err != nil {
			r.abort(id, lease, err)
			return err
		}

		req, ok := r.startPhase(id, lease, i, total)
		if !ok {
			r.logger.InfoContext(ctx, "scan halted", "before_phase", phase.Name)
			return nil
		}

		pctx := scanlog.ContextAttrs(ctx, slog.String("phase", phase.Name))
		r.logger.DebugContext(pctx, "phase started", "index", i, "total", total)

		phaseStart := time.Now()
		out, phaseErr := r.runPhase(pctx, req)
		elapsed := time.Since(phaseStart)

		if phaseErr != nil {
			r.logger.WarnContext(pctx, "phase failed", "error", phaseErr, "elapsed", elapsed.Round(time.Millisecond))
		} else {
			r.logger.InfoContext(pctx, "phase complete", "findings", out.Findings, "elapsed", elapsed.Round(time.Millisecond))
		}

		if !r.finishPhase(id, lease, i, total, out, phaseErr) {
			if phaseErr != nil {
				return fmt.Errorf("phase %q: %w", phase.Name, phaseErr)
			}
			return nil
		}
	}

	r.complete(ctx, id, lease)
	return nil
}

// startPhase flips the record to scanning if needed and marks phase i
// running. It reports false when the record is no longer scanning.
func (r *Runner) startPhase(id string, lease registry.Lease, i, total int) (Request, bool) {
	var (
		req Request
		ev  PhaseEvent
	)
	ok := r.reg.Drive(id, lease, func(rec *models.ScanRecord) bool {
		if rec.Status == models.StatusPending {
			rec.Status = models.StatusScanning
		}
		if rec.Status != models.StatusScanning {
			return false
		}

		now := r.reg.Now()
		ph := &rec.Phases[i]
		ph.Status = models.PhaseRunning
		ph.Progress = 0
		ph.StartedAt = &now
		ph.Error = ""
		rec.CurrentPhase = ph.Name
		rec.Progress = max(rec.Progress, percent(i, total))

		req = Request{
			ScanID:   rec.ID,
			Kind:     rec.Kind,
			Target:   rec.Target,
			Phase:    models.PhaseSpec{Name: ph.Name, Description: ph.Description},
			Index:    i,
			Total:    total,
			Snapshot: rec.Clone(),
		}
		ev = PhaseEvent{ScanID: rec.ID, Index: i, Phase: ph.Clone()}
		return true
	})
	if ok {
		r.events.Publish(ev)
	}
	return req, ok
}

// finishPhase records the outcome of phase i. It reports whether the loop
// should carry on to the next phase.
func (r *Runner) finishPhase(id string, lease registry.Lease, i, total int, out Outcome, phaseErr error) bool {
	var (
		ev   PhaseEvent
		emit bool
	)
	keep := r.reg.Drive(id, lease, func(rec *models.ScanRecord) bool {
		emit = !rec.Status.Terminal()

		now := r.reg.Now()
		ph := &rec.Phases[i]
		ph.CompletedAt = &now
		if ph.StartedAt != nil {
			ph.Duration = now.Sub(*ph.StartedAt)
		}

		if phaseErr != nil {
			ph.Status = models.PhaseFailed
			ph.Error = phaseErr.Error()
			if !rec.Status.Terminal() {
				rec.Status = models.StatusFailed
				rec.EndTime = &now
				rec.Error = fmt.Sprintf("phase %s: %v", ph.Name, phaseErr)
			}
			ev = PhaseEvent{ScanID: rec.ID, Index: i, Phase: ph.Clone()}
			return false
		}

		rec.Results.Merge(out.Results)
		ph.Status = models.PhaseCompleted
		ph.Progress = 100
		ph.Findings = out.Findings
		rec.Statistics.TotalFindings += out.Findings
		rec.Statistics.TotalRequests += out.Requests
		if rec.Status == models.StatusScanning {
			rec.Progress = max(rec.Progress, percent(i+1, total))
		}
		ev = PhaseEvent{ScanID: rec.ID, Index: i, Phase: ph.Clone()}
		return rec.Status == models.StatusScanning
	})
	if emit {
		r.events.Publish(ev)
	}
	return keep
}

// complete moves a record that made it through every phase to completed.
func (r *Runner) complete(ctx context.Context, id string, lease registry.Lease) {
	var done bool
	r.reg.Drive(id, lease, func(rec *models.ScanRecord) bool {
		if rec.Status != models.StatusScanning {
			return false
		}
		now := r.reg.Now()
		rec.Status = models.StatusCompleted
		rec.Progress = 100
		rec.EndTime = &now
		rec.CurrentPhase = ""
		rec.Finalize()
		done = true
		return false
	})
	if done {
		r.logger.InfoContext(ctx, "scan complete")
	}
}

// abort fails a record whose driver was cancelled between phases.
func (r *Runner) abort(id string, lease registry.Lease, cause error) {
	r.reg.Drive(id, lease, func(rec *models.ScanRecord) bool {
		if !rec.Status.Terminal() {
			now := r.reg.Now()
			rec.Status = models.StatusFailed
			rec.EndTime = &now
			rec.Error = fmt.Sprintf("interrupted: %v", cause)
		}
		return false
	})
}

// runPhase looks up the handler for req and runs it with the per-phase
// timeout applied. A handler that ignores its context is abandoned once the
// context is done.
func (r *Runner) runPhase(ctx context.Context, req Request) (Outcome, error) {
	h, ok := r.handlers[req.Phase.Name]
	if !ok || h == nil {
		h = r.fallback
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := runPhaseIsolated(ctx, h, req)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		select {
		case res := <-done:
			return res.out, res.err
		default:
		}
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, err)
		}
		return Outcome{}, err
	}
}

// runPhaseIsolated runs a single phase inside a deferred recover so that a
// panic in handler code is returned as an error rather than crashing the
// process.
func runPhaseIsolated(ctx context.Context, h Handler, req Request) (out Outcome, retErr error) {
	defer func() {
		if rec := recover(); rec != nil {
			retErr = fmt.Errorf("phase %q panicked: %v", req.Phase.Name, rec)
		}
	}()
	return h.Run(ctx, req)
}

// percent is round(i/total*100).
func percent(i, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(i) / float64(total) * 100))
}
