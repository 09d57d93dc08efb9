package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// PhaseSpec names one phase of a scan template
type PhaseSpec struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// PhaseRecord tracks a single phase of a scan
type PhaseRecord struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      PhaseStatus   `json:"status"`
	Progress    int           `json:"progress"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Findings    int           `json:"findings"`
	Error       string        `json:"error,omitempty"`
}

// Clone copies p without sharing its timestamps.
func (p PhaseRecord) Clone() PhaseRecord {
	p.StartedAt = cloneTime(p.StartedAt)
	p.CompletedAt = cloneTime(p.CompletedAt)
	return p
}

// Statistics is the aggregate computed from a scan's results
type Statistics struct {
	TotalRequests int      `json:"total_requests"`
	TotalFindings int      `json:"total_findings"`
	RiskLevel     Severity `json:"risk_level"`
	Score         int      `json:"score"`
}

// ScanRecord is the mutable aggregate representing one scan or enumeration
type ScanRecord struct {
	ID           string        `json:"id"`
	Kind         ScanKind      `json:"kind"`
	Target       string        `json:"target"`
	Status       ScanStatus    `json:"status"`
	Progress     int           `json:"progress"`
	CurrentPhase string        `json:"current_phase,omitempty"`
	Phases       []PhaseRecord `json:"phases"`
	Results      Results       `json:"results"`
	Statistics   Statistics    `json:"statistics"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      *time.Time    `json:"end_time,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// NewScan creates a pending scan record with every phase pending
func NewScan(kind ScanKind, target string, template []PhaseSpec, now time.Time) *ScanRecord {
	phases := make([]PhaseRecord, len(template))
	for i, p := range template {
		phases[i] = PhaseRecord{
			Name:        p.Name,
			Description: p.Description,
			Status:      PhasePending,
		}
	}
	return &ScanRecord{
		ID:         kind.Prefix() + "_" + uuid.NewString(),
		Kind:       kind,
		Target:     target,
		Status:     StatusPending,
		Phases:     phases,
		StartTime:  now,
		Statistics: Statistics{RiskLevel: SeverityLow, Score: 100},
		Results: Results{
			OpenPorts:       []Port{},
			Vulnerabilities: []Vulnerability{},
			Subdomains:      []Subdomain{},
			Technologies:    []Technology{},
			Directories:     []Directory{},
			Forms:           []Form{},
			Cookies:         []Cookie{},
		},
	}
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *ScanRecord) Clone() ScanRecord {
	out := *s
	out.Phases = slices.Clone(s.Phases)
	for i := range out.Phases {
		out.Phases[i] = out.Phases[i].Clone()
	}
	out.EndTime = cloneTime(s.EndTime)
	out.Results = s.Results.Clone()
	return out
}

// Phase returns the phase record with the given name.
func (s *ScanRecord) Phase(name string) (PhaseRecord, bool) {
	for _, p := range s.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseRecord{}, false
}

// Duration is the wall time between start and end, or zero while running.
func (s *ScanRecord) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// ActiveSubdomains counts subdomains reported as active.
func (s *ScanRecord) ActiveSubdomains() int {
	n := 0
	for _, sub := range s.Results.Subdomains {
		if sub.Status == "active" {
			n++
		}
	}
	return n
}

// Severity penalties applied to the 100-point score.
const (
	penaltyCritical = 30
	penaltyHigh     = 15
	penaltyMedium   = 5
	penaltyLow      = 1
)

// RiskLevel returns the highest severity present, or low when there are none.
func RiskLevel(vulns []Vulnerability) Severity {
	risk := SeverityLow
	for _, v := range vulns {
		if v.Severity.Rank() > risk.Rank() {
			risk = v.Severity
		}
	}
	return risk
}

// Score starts at 100 and subtracts a fixed penalty per finding, floored at 0.
func Score(vulns []Vulnerability) int {
	score := 100
	for _, v := range vulns {
		switch v.Severity {
		case SeverityCritical:
			score -= penaltyCritical
		case SeverityHigh:
			score -= penaltyHigh
		case SeverityMedium:
			score -= penaltyMedium
		case SeverityLow:
			score -= penaltyLow
		}
	}
	return max(score, 0)
}

// Finalize computes the completion-only statistics from the results.
func (s *ScanRecord) Finalize() {
	s.Statistics.RiskLevel = RiskLevel(s.Results.Vulnerabilities)
	s.Statistics.Score = Score(s.Results.Vulnerabilities)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
