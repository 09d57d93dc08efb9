// Package diff computes the delta between two scan records of the same
// target: what is new, what disappeared, and how the risk moved.
package diff

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/hakim/scandeck/internal/models"
)

// takeoverIssue is the subdomain issue label marking a takeover candidate.
const takeoverIssue = "Potential Subdomain Takeover"

// DiffResult holds the complete delta between a current and a previous scan
// record. All slice fields are non-nil (empty slices, not nil) so callers
// can range over them unconditionally.
type DiffResult struct {
	CurrentID  string `json:"current_id"`
	PreviousID string `json:"previous_id"`

	// Subdomain changes
	NewSubdomains     []models.Subdomain `json:"new_subdomains"`
	RemovedSubdomains []models.Subdomain `json:"removed_subdomains"`

	// Port changes
	NewPorts    []models.Port `json:"new_ports"`
	ClosedPorts []models.Port `json:"closed_ports"`

	// Vulnerability changes
	NewVulns      []models.Vulnerability `json:"new_vulns"`
	ResolvedVulns []models.Vulnerability `json:"resolved_vulns"`

	// Takeover candidate classification
	NewlyTakeover        []models.Subdomain `json:"newly_takeover"`
	PersistentlyTakeover []models.Subdomain `json:"persistently_takeover"`
	ResolvedTakeover     []models.Subdomain `json:"resolved_takeover"`

	// Summary counts (convenient for rendering without re-iterating slices)
	CurrentSubdomainCount  int `json:"current_subdomain_count"`
	PreviousSubdomainCount int `json:"previous_subdomain_count"`
	CurrentPortCount       int `json:"current_port_count"`
	PreviousPortCount      int `json:"previous_port_count"`
	CurrentVulnCount       int `json:"current_vuln_count"`
	PreviousVulnCount      int `json:"previous_vuln_count"`

	CurrentRisk   models.Severity `json:"current_risk"`
	PreviousRisk  models.Severity `json:"previous_risk"`
	CurrentScore  int             `json:"current_score"`
	PreviousScore int             `json:"previous_score"`
}

// Empty reports whether no changes exist across all categories.
func (r *DiffResult) Empty() bool {
	return len(r.NewSubdomains) == 0 &&
		len(r.RemovedSubdomains) == 0 &&
		len(r.NewPorts) == 0 &&
		len(r.ClosedPorts) == 0 &&
		len(r.NewVulns) == 0 &&
		len(r.ResolvedVulns) == 0 &&
		len(r.NewlyTakeover) == 0 &&
		len(r.ResolvedTakeover) == 0
}

// ComputeDiff calculates the delta between current and previous. Pass a zero
// ScanRecord as previous for the "no previous scan" case.
func ComputeDiff(current, previous models.ScanRecord) *DiffResult {
	dr := &DiffResult{
		CurrentID:            current.ID,
		PreviousID:           previous.ID,
		NewSubdomains:        []models.Subdomain{},
		RemovedSubdomains:    []models.Subdomain{},
		NewPorts:             []models.Port{},
		ClosedPorts:          []models.Port{},
		NewVulns:             []models.Vulnerability{},
		ResolvedVulns:        []models.Vulnerability{},
		NewlyTakeover:        []models.Subdomain{},
		PersistentlyTakeover: []models.Subdomain{},
		ResolvedTakeover:     []models.Subdomain{},
	}

	cur, prev := current.Results, previous.Results
	diffSubdomains(dr, cur.Subdomains, prev.Subdomains)
	dr.NewPorts, dr.ClosedPorts = added(cur.OpenPorts, prev.OpenPorts, portKey), added(prev.OpenPorts, cur.OpenPorts, portKey)
	dr.NewVulns, dr.ResolvedVulns = added(cur.Vulnerabilities, prev.Vulnerabilities, vulnKey), added(prev.Vulnerabilities, cur.Vulnerabilities, vulnKey)

	slices.SortFunc(dr.NewPorts, comparePorts)
	slices.SortFunc(dr.ClosedPorts, comparePorts)
	slices.SortStableFunc(dr.NewVulns, compareVulns)
	slices.SortStableFunc(dr.ResolvedVulns, compareVulns)

	dr.CurrentSubdomainCount = len(cur.Subdomains)
	dr.PreviousSubdomainCount = len(prev.Subdomains)
	dr.CurrentPortCount = len(cur.OpenPorts)
	dr.PreviousPortCount = len(prev.OpenPorts)
	dr.CurrentVulnCount = len(cur.Vulnerabilities)
	dr.PreviousVulnCount = len(prev.Vulnerabilities)

	dr.CurrentRisk, dr.CurrentScore = models.RiskLevel(cur.Vulnerabilities), models.Score(cur.Vulnerabilities)
	dr.PreviousRisk, dr.PreviousScore = models.RiskLevel(prev.Vulnerabilities), models.Score(prev.Vulnerabilities)
	return dr
}

// ---------------------------------------------------------------------------
// Subdomain diff
// ---------------------------------------------------------------------------

// diffSubdomains computes new, removed, and takeover changes.
// Key: Subdomain.Name (the fully-qualified subdomain string).
func diffSubdomains(dr *DiffResult, current, previous []models.Subdomain) {
	prevByName := make(map[string]models.Subdomain, len(previous))
	for _, s := range previous {
		prevByName[s.Name] = s
	}
	currByName := make(map[string]models.Subdomain, len(current))
	for _, s := range current {
		currByName[s.Name] = s
	}

	for _, s := range current {
		prev, existed := prevByName[s.Name]
		if !existed {
			dr.NewSubdomains = append(dr.NewSubdomains, s)
			if isTakeover(s) {
				dr.NewlyTakeover = append(dr.NewlyTakeover, s)
			}
			continue
		}

		switch {
		case isTakeover(s) && !isTakeover(prev):
			dr.NewlyTakeover = append(dr.NewlyTakeover, s)
		case isTakeover(s) && isTakeover(prev):
			dr.PersistentlyTakeover = append(dr.PersistentlyTakeover, s)
		case !isTakeover(s) && isTakeover(prev):
			dr.ResolvedTakeover = append(dr.ResolvedTakeover, s)
		}
	}

	// Removed: existed before but absent now
	for _, s := range previous {
		if _, exists := currByName[s.Name]; exists {
			continue
		}
		dr.RemovedSubdomains = append(dr.RemovedSubdomains, s)
		if isTakeover(s) {
			dr.ResolvedTakeover = append(dr.ResolvedTakeover, s)
		}
	}
}

func isTakeover(s models.Subdomain) bool {
	return slices.Contains(s.Issues, takeoverIssue)
}

// ---------------------------------------------------------------------------
// Port and vulnerability diff
// ---------------------------------------------------------------------------

// portKey uniquely identifies an open port. Format: "number/service"
func portKey(p models.Port) string {
	return fmt.Sprintf("%d/%s", p.Number, p.Service)
}

// vulnKey uniquely identifies a vulnerability finding.
// Format: "title::category::port"
func vulnKey(v models.Vulnerability) string {
	return fmt.Sprintf("%s::%s::%d", v.Title, v.Category, v.Port)
}

// added returns the items of a whose key is absent from b, first occurrence
// of each key only.
func added[T any](a, b []T, key func(T) string) []T {
	seen := make(map[string]bool, len(b))
	for _, v := range b {
		seen[key(v)] = true
	}
	out := []T{}
	for _, v := range a {
		k := key(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func comparePorts(a, b models.Port) int {
	return cmp.Or(cmp.Compare(a.Number, b.Number), cmp.Compare(a.Service, b.Service))
}

// compareVulns sorts critical-first, then by title.
func compareVulns(a, b models.Vulnerability) int {
	return cmp.Or(cmp.Compare(b.Severity.Rank(), a.Severity.Rank()), cmp.Compare(a.Title, b.Title))
}
