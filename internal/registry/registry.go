// Package registry holds every scan record for the lifetime of the process.
//
// Records are owned by the Registry and mutated in place under its lock.
// Everything handed out (Get, All, subscriber callbacks) is a deep copy, so
// callers never share memory with the live record. Snapshots are delivered
// to subscribers in the order the mutations happened.
//
// A record is advanced by at most one driver at a time. A driver obtains a
// lease with Acquire and applies its changes through Drive; Pause, Stop and
// Resume may be called by anyone at any time.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hakim/scandeck/internal/broadcast"
	"github.com/hakim/scandeck/internal/models"
)

var (
	ErrNotFound  = errors.New("scan not found")
	ErrLeaseHeld = errors.New("scan is already being driven")
	ErrTerminal  = errors.New("scan already finished")
)

// StoppedByUser is the error recorded on a record ended by Stop.
const StoppedByUser = "stopped by user"

// Lease identifies the current driver of a record. The zero Lease is never
// issued.
type Lease uint64

type entry struct {
	rec   *models.ScanRecord
	lease Lease
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for EndTime and StartTime.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

type Registry struct {
	mx       sync.Mutex
	records  map[string]*entry
	order    []string
	leaseSeq Lease
	now      func() time.Time

	updates *broadcast.Broadcaster[models.ScanRecord]
	out     *broadcast.Serial[models.ScanRecord]
}

func New(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*entry),
		now:     time.Now,
		updates: broadcast.New[models.ScanRecord]("scan-updates"),
	}
	r.out = broadcast.NewSerial(r.updates)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Create stores a new pending record built from template and returns its id.
// It does not start the scan.
func (r *Registry) Create(kind models.ScanKind, target string, template []models.PhaseSpec) string {
	rec := models.NewScan(kind, target, template, r.now())

	r.mx.Lock()
	for r.records[rec.ID] != nil {
		rec.ID = models.NewScan(kind, target, nil, rec.StartTime).ID
	}
	r.records[rec.ID] = &entry{rec: rec}
	r.order = append(r.order, rec.ID)
	r.enqueue(rec)
	r.mx.Unlock()

	r.flush()
	return rec.ID
}

// Get returns a snapshot of the record. Absence is reported through ok.
func (r *Registry) Get(id string) (models.ScanRecord, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	e, ok := r.records[id]
	if !ok {
		return models.ScanRecord{}, false
	}
	return e.rec.Clone(), true
}

// All returns snapshots of every record in insertion order.
func (r *Registry) All() []models.ScanRecord {
	r.mx.Lock()
	defer r.mx.Unlock()
	out := make([]models.ScanRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].rec.Clone())
	}
	return out
}

// Len returns the number of records held.
func (r *Registry) Len() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.order)
}

// Pause moves a scanning record to paused. The phase in flight, if any,
// still completes; the driver stops before the next one.
func (r *Registry) Pause(id string) bool {
	return r.transition(id, func(rec *models.ScanRecord) bool {
		if rec.Status != models.StatusScanning {
			return false
		}
		rec.Status = models.StatusPaused
		return true
	})
}

// Stop moves a scanning or paused record to failed and stamps its end time.
func (r *Registry) Stop(id string) bool {
	return r.transition(id, func(rec *models.ScanRecord) bool {
		if rec.Status != models.StatusScanning && rec.Status != models.StatusPaused {
			return false
		}
		now := r.now()
		rec.Status = models.StatusFailed
		rec.EndTime = &now
		rec.Error = StoppedByUser
		return true
	})
}

// Resume moves a paused record back to scanning. The caller is expected to
// start a driver for it; if the previous driver still holds the lease it
// simply carries on.
func (r *Registry) Resume(id string) bool {
	return r.transition(id, func(rec *models.ScanRecord) bool {
		if rec.Status != models.StatusPaused {
			return false
		}
		rec.Status = models.StatusScanning
		return true
	})
}

func (r *Registry) transition(id string, fn func(*models.ScanRecord) bool) bool {
	r.mx.Lock()
	e, ok := r.records[id]
	if !ok || !fn(e.rec) {
		r.mx.Unlock()
		return false
	}
	r.enqueue(e.rec)
	r.mx.Unlock()

	r.flush()
	return true
}

// Subscribe registers fn for whole-record snapshots of every change.
func (r *Registry) Subscribe(fn func(models.ScanRecord)) (unsubscribe func()) {
	return r.updates.SubscribeFunc(fn)
}

// Acquire grants the driving lease for a non-terminal record.
func (r *Registry) Acquire(id string) (Lease, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	e, ok := r.records[id]
	switch {
	case !ok:
		return 0, fmt.Errorf("acquire %s: %w", id, ErrNotFound)
	case e.rec.Status.Terminal():
		return 0, fmt.Errorf("acquire %s: %w", id, ErrTerminal)
	case e.lease != 0:
		return 0, fmt.Errorf("acquire %s: %w", id, ErrLeaseHeld)
	}
	r.leaseSeq++
	e.lease = r.leaseSeq
	return e.lease, nil
}

// Drive runs fn against the live record while holding the registry lock.
// fn returns whether the driver keeps going; when it returns false the lease
// is released before the lock is dropped, so a concurrent Acquire can never
// observe a stale lease. A snapshot is published afterwards unless the
// record was already terminal when fn was called.
//
// Drive returns false without calling fn when lease is not the current lease.
func (r *Registry) Drive(id string, lease Lease, fn func(*models.ScanRecord) bool) bool {
	r.mx.Lock()
	e, ok := r.records[id]
	if !ok || lease == 0 || e.lease != lease {
		r.mx.Unlock()
		return false
	}
	wasTerminal := e.rec.Status.Terminal()
	keep := fn(e.rec)
	if !keep {
		e.lease = 0
	}
	if !wasTerminal {
		r.enqueue(e.rec)
	}
	r.mx.Unlock()

	r.flush()
	return keep
}

// Release gives the lease back. Releasing a lease that is no longer current
// is a no-op.
func (r *Registry) Release(id string, lease Lease) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if e, ok := r.records[id]; ok && lease != 0 && e.lease == lease {
		e.lease = 0
	}
}

// enqueue must be called with mx held.
func (r *Registry) enqueue(rec *models.ScanRecord) {
	r.out.Enqueue(rec.Clone())
}

func (r *Registry) flush() {
	r.out.Flush()
}
