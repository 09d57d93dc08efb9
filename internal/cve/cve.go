// Package cve answers CVE lookups, keyword searches and recent-publication
// queries from a built-in advisory pool. Queries take a short simulated
// delay and report what they found to the notification center.
package cve

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/notify"
)

// ErrNotFound is returned by Lookup for ids missing from the pool.
var ErrNotFound = errors.New("cve not found")

const (
	DefaultSearchLimit = 20
	DefaultRecentDays  = 7
	maxRecent          = 10

	lookupDelay = 500 * time.Millisecond
	searchDelay = 800 * time.Millisecond
	recentDelay = 600 * time.Millisecond
)

// Record is one advisory.
type Record struct {
	ID           string          `json:"id"`
	Description  string          `json:"description"`
	Severity     models.Severity `json:"severity"`
	CVSS         float64         `json:"cvss_score"`
	Vector       string          `json:"cvss_vector"`
	Published    time.Time       `json:"published"`
	LastModified time.Time       `json:"last_modified"`
	References   []string        `json:"references"`
	CPE          []string        `json:"cpe"`
	Weaknesses   []string        `json:"weaknesses"`
}

func (r Record) clone() Record {
	r.References = slices.Clone(r.References)
	r.CPE = slices.Clone(r.CPE)
	r.Weaknesses = slices.Clone(r.Weaknesses)
	return r
}

// Database is safe for concurrent use; the pool is never modified.
type Database struct {
	pool   []Record
	center *notify.Center
	scale  float64
	now    func() time.Time
}

type Option func(*Database)

// WithDelayScale multiplies the simulated query delays. 0 answers at once.
func WithDelayScale(f float64) Option {
	return func(d *Database) { d.scale = max(f, 0) }
}

// WithClock sets the time source used by Recent.
func WithClock(now func() time.Time) Option {
	return func(d *Database) { d.now = now }
}

// WithPool replaces the built-in advisories.
func WithPool(recs []Record) Option {
	return func(d *Database) { d.pool = slices.Clone(recs) }
}

// New returns a Database reporting to center. A nil center disables
// notifications.
func New(center *notify.Center, opts ...Option) *Database {
	d := &Database{
		pool:   defaultPool(),
		center: center,
		scale:  1,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Lookup returns the advisory with the given id. Ids are matched
// case-insensitively.
func (d *Database) Lookup(ctx context.Context, id string) (Record, error) {
	if err := d.wait(ctx, lookupDelay); err != nil {
		return Record{}, err
	}

	id = strings.ToUpper(strings.TrimSpace(id))
	i := slices.IndexFunc(d.pool, func(r Record) bool { return r.ID == id })
	if i < 0 {
		return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	rec := d.pool[i].clone()

	typ := models.NotificationWarning
	if rec.Severity == models.SeverityCritical || rec.Severity == models.SeverityHigh {
		typ = models.NotificationError
	}
	d.notify(models.Notification{
		Title:    "CVE Found",
		Message:  fmt.Sprintf("Found CVE %s with severity %s", rec.ID, strings.ToUpper(string(rec.Severity))),
		Type:     typ,
		Metadata: map[string]any{"cve_id": rec.ID, "severity": string(rec.Severity)},
	})
	return rec, nil
}

// Search returns up to limit advisories whose description or CPE names
// contain query, ignoring case. limit <= 0 means DefaultSearchLimit.
func (d *Database) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if err := d.wait(ctx, searchDelay); err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Record, 0)
	for _, r := range d.pool {
		if len(out) == limit {
			break
		}
		if matches(r, q) {
			out = append(out, r.clone())
		}
	}

	if len(out) > 0 {
		d.notify(models.Notification{
			Title:    "CVE Search Results",
			Message:  fmt.Sprintf("Found %d CVEs matching %q", len(out), query),
			Type:     models.NotificationInfo,
			Metadata: map[string]any{"query": query, "count": len(out)},
		})
	}
	return out, nil
}

// Recent returns the newest advisories published within the last days,
// newest first and at most ten. days <= 0 means DefaultRecentDays.
func (d *Database) Recent(ctx context.Context, days int) ([]Record, error) {
	if days <= 0 {
		days = DefaultRecentDays
	}
	if err := d.wait(ctx, recentDelay); err != nil {
		return nil, err
	}

	cutoff := d.now().AddDate(0, 0, -days)
	out := make([]Record, 0)
	for _, r := range d.pool {
		if r.Published.After(cutoff) {
			out = append(out, r.clone())
		}
	}
	slices.SortStableFunc(out, func(a, b Record) int { return cmp.Compare(b.Published.UnixNano(), a.Published.UnixNano()) })
	if len(out) > maxRecent {
		out = out[:maxRecent]
	}

	d.notify(models.Notification{
		Title:    "Recent CVEs Updated",
		Message:  fmt.Sprintf("Found %d CVEs published in the last %d days", len(out), days),
		Type:     models.NotificationInfo,
		Metadata: map[string]any{"days": days, "count": len(out)},
	})
	return out, nil
}

func matches(r Record, q string) bool {
	if strings.Contains(strings.ToLower(r.Description), q) {
		return true
	}
	return slices.ContainsFunc(r.CPE, func(c string) bool {
		return strings.Contains(strings.ToLower(c), q)
	})
}

func (d *Database) notify(n models.Notification) {
	if d.center != nil {
		d.center.Add(n)
	}
}

func (d *Database) wait(ctx context.Context, base time.Duration) error {
	delay := time.Duration(float64(base) * d.scale)
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
