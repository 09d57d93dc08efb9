package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hakim/scandeck/internal/diff"
	"github.com/hakim/scandeck/internal/models"
)

// DiffMarkdown renders the delta between two scans of target as markdown.
func DiffMarkdown(target string, result *diff.DiffResult) []byte {
	var b strings.Builder

	b.WriteString("# Scan Diff Report\n\n")
	b.WriteString(fmt.Sprintf("**Target:** %s\n", target))
	b.WriteString(fmt.Sprintf("**Scans:** %s → %s\n", orDash(result.PreviousID), result.CurrentID))
	b.WriteString(fmt.Sprintf("**Date:** %s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC")))

	// If there are zero changes across all categories, short-circuit.
	if result.Empty() {
		b.WriteString("No changes detected.\n")
		return []byte(b.String())
	}

	writeDiffSummaryTable(&b, result)
	writeSubdomainList(&b, "New Subdomains (+%d)", result.NewSubdomains, true)
	writeSubdomainList(&b, "Removed Subdomains (-%d)", result.RemovedSubdomains, false)
	writePortChanges(&b, "New Open Ports (+%d)", result.NewPorts)
	writePortChanges(&b, "Closed Ports (-%d)", result.ClosedPorts)
	writeVulnChanges(&b, "New Vulnerabilities (+%d)", result.NewVulns)
	writeVulnChanges(&b, "Resolved Vulnerabilities (-%d)", result.ResolvedVulns)
	writeTakeoverChanges(&b, result)

	return []byte(b.String())
}

// ---------------------------------------------------------------------------
// Section writers
// ---------------------------------------------------------------------------

// writeDiffSummaryTable writes the comparison table.
func writeDiffSummaryTable(b *strings.Builder, r *diff.DiffResult) {
	b.WriteString("## Summary\n\n")
	b.WriteString("| Category | Previous | Current | Change |\n")
	b.WriteString("|----------|----------|---------|--------|\n")

	b.WriteString(fmt.Sprintf("| Subdomains | %d | %d | %s |\n",
		r.PreviousSubdomainCount, r.CurrentSubdomainCount, formatChange(len(r.NewSubdomains), len(r.RemovedSubdomains))))
	b.WriteString(fmt.Sprintf("| Open Ports | %d | %d | %s |\n",
		r.PreviousPortCount, r.CurrentPortCount, formatChange(len(r.NewPorts), len(r.ClosedPorts))))
	b.WriteString(fmt.Sprintf("| Vulnerabilities | %d | %d | %s |\n",
		r.PreviousVulnCount, r.CurrentVulnCount, formatChange(len(r.NewVulns), len(r.ResolvedVulns))))
	b.WriteString(fmt.Sprintf("| Risk | %s (%d) | %s (%d) | %+d |\n",
		r.PreviousRisk, r.PreviousScore, r.CurrentRisk, r.CurrentScore, r.CurrentScore-r.PreviousScore))
	b.WriteString("\n")
}

// writeSubdomainList renders a subdomain section. Skipped when empty.
func writeSubdomainList(b *strings.Builder, heading string, subs []models.Subdomain, detail bool) {
	if len(subs) == 0 {
		return
	}
	b.WriteString("## " + fmt.Sprintf(heading, len(subs)) + "\n\n")
	for _, s := range subs {
		if detail {
			b.WriteString(fmt.Sprintf("- %s (%s)\n", s.Name, subdomainSummary(s)))
		} else {
			b.WriteString(fmt.Sprintf("- %s\n", s.Name))
		}
	}
	b.WriteString("\n")
}

// writePortChanges renders a port change table. Skipped when empty.
func writePortChanges(b *strings.Builder, heading string, ports []models.Port) {
	if len(ports) == 0 {
		return
	}
	b.WriteString("## " + fmt.Sprintf(heading, len(ports)) + "\n\n")
	b.WriteString("| Port | Service | Version |\n")
	b.WriteString("|------|---------|---------|\n")
	for _, p := range ports {
		b.WriteString(fmt.Sprintf("| %d | %s | %s |\n", p.Number, orDash(p.Service), orDash(p.Version)))
	}
	b.WriteString("\n")
}

// writeVulnChanges renders a vulnerability change table. Skipped when empty.
func writeVulnChanges(b *strings.Builder, heading string, vulns []models.Vulnerability) {
	if len(vulns) == 0 {
		return
	}
	b.WriteString("## " + fmt.Sprintf(heading, len(vulns)) + "\n\n")
	b.WriteString("| Severity | Title | Category |\n")
	b.WriteString("|----------|-------|----------|\n")
	for _, v := range vulns {
		b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", v.Severity, escapeCell(v.Title), orDash(v.Category)))
	}
	b.WriteString("\n")
}

// writeTakeoverChanges renders the takeover candidate section with three
// sub-sections. The outer section header is omitted when all three are empty.
func writeTakeoverChanges(b *strings.Builder, r *diff.DiffResult) {
	if len(r.NewlyTakeover) == 0 && len(r.PersistentlyTakeover) == 0 && len(r.ResolvedTakeover) == 0 {
		return
	}

	b.WriteString("## Takeover Candidate Changes\n\n")
	groups := []struct {
		title string
		subs  []models.Subdomain
	}{
		{"Newly Vulnerable", r.NewlyTakeover},
		{"Persistently Vulnerable", r.PersistentlyTakeover},
		{"Resolved", r.ResolvedTakeover},
	}
	for _, g := range groups {
		if len(g.subs) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("### %s (%d)\n\n", g.title, len(g.subs)))
		for _, s := range g.subs {
			b.WriteString(fmt.Sprintf("- %s (%s)\n", s.Name, s.Status))
		}
		b.WriteString("\n")
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// formatChange returns a human-readable change string such as "+3 / -1".
// When there are no additions and no removals it returns "none".
func formatChange(added, removed int) string {
	if added == 0 && removed == 0 {
		return "none"
	}
	parts := make([]string, 0, 2)
	if added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d", removed))
	}
	return strings.Join(parts, " / ")
}

// subdomainSummary prefers the resolved IPs and falls back to the status.
func subdomainSummary(s models.Subdomain) string {
	if len(s.IPs) > 0 {
		return "A: " + strings.Join(s.IPs, ", ")
	}
	return s.Status
}
