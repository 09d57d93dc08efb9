package report

import (
	"fmt"
	"strings"

	"github.com/hakim/scandeck/internal/models"
)

// Markdown renders doc as a markdown report.
func Markdown(doc Document) ([]byte, error) {
	var b strings.Builder

	// Header
	b.WriteString(fmt.Sprintf("# %s\n\n", doc.Title))
	b.WriteString(fmt.Sprintf("**Target:** %s\n", doc.Target))
	b.WriteString(fmt.Sprintf("**Scan:** %s (%s, %s)\n", doc.ScanID, doc.Kind, doc.Status))
	b.WriteString(fmt.Sprintf("**Date:** %s\n", doc.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))
	b.WriteString(fmt.Sprintf("**Risk level:** %s | **Score:** %d/100\n\n",
		strings.ToUpper(string(doc.Executive.RiskLevel)), doc.Executive.Score))

	writeExecutiveSummary(&b, doc.Executive)
	writeScanDetails(&b, doc.Details)
	writeSeveritySummary(&b, doc.Vulnerabilities)
	writeFindings(&b, doc.Vulnerabilities.Findings)
	writeSubdomains(&b, doc.Subdomains)
	writeRecommendations(&b, doc.Recommendations)
	writeAppendices(&b, doc.Appendices)

	return []byte(b.String()), nil
}

// ---------------------------------------------------------------------------
// Section writers
// ---------------------------------------------------------------------------

func writeExecutiveSummary(b *strings.Builder, e ExecutiveSummary) {
	b.WriteString("## Executive Summary\n\n")
	b.WriteString(fmt.Sprintf("- **Total vulnerabilities:** %d\n", e.TotalVulnerabilities))
	b.WriteString(fmt.Sprintf("- **Critical findings:** %d\n", e.CriticalFindings))
	b.WriteString(fmt.Sprintf("- **Business impact:** %s\n", e.BusinessImpact))
	b.WriteString(fmt.Sprintf("- **Time to remediate:** %s\n\n", e.TimeToRemediate))

	b.WriteString("### Key Findings\n\n")
	if len(e.KeyFindings) == 0 {
		b.WriteString("None found.\n\n")
		return
	}
	for _, k := range e.KeyFindings {
		b.WriteString(fmt.Sprintf("- %s\n", k))
	}
	b.WriteString("\n")
}

func writeScanDetails(b *strings.Builder, d ScanDetails) {
	b.WriteString("## Scan Details\n\n")
	b.WriteString(fmt.Sprintf("- **Scope:** %s\n", strings.Join(d.Scope, ", ")))
	b.WriteString(fmt.Sprintf("- **Duration:** %s\n", d.Duration))
	b.WriteString(fmt.Sprintf("- **Phases:** %d | **Requests:** %d\n", d.Phases, d.Requests))
	b.WriteString(fmt.Sprintf("- **Coverage:** %s\n", d.Coverage))
	b.WriteString(fmt.Sprintf("- **Methodology:** %s\n", strings.Join(d.Methodology, ", ")))
	b.WriteString(fmt.Sprintf("- **Tools:** %s\n", strings.Join(d.Tools, ", ")))
	b.WriteString(fmt.Sprintf("- **Limitations:** %s\n\n", strings.Join(d.Limitations, "; ")))
}

func writeSeveritySummary(b *strings.Builder, v VulnerabilitySection) {
	b.WriteString("## Vulnerability Summary\n\n")
	b.WriteString("| Severity | Count |\n")
	b.WriteString("|----------|-------|\n")
	for _, sev := range severityOrder {
		b.WriteString(fmt.Sprintf("| %s | %d |\n", severityLabel(sev), v.Summary.Get(sev)))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("- **Most common category:** %s\n", v.Trends.MostCommon))
	b.WriteString(fmt.Sprintf("- **Riskiest finding:** %s\n", v.Trends.Riskiest))
	b.WriteString(fmt.Sprintf("- **Easiest to fix:** %s\n\n", v.Trends.EasiestToFix))
}

// writeFindings writes one section per severity in priority order.
func writeFindings(b *strings.Builder, findings []Finding) {
	bySeverity := findingsBySeverity(findings)
	for _, sev := range severityOrder {
		b.WriteString(fmt.Sprintf("## %s Findings\n\n", severityLabel(sev)))

		group := bySeverity[sev]
		if len(group) == 0 {
			b.WriteString(fmt.Sprintf("No %s findings.\n\n", string(sev)))
			continue
		}

		b.WriteString("| Title | CVSS | Category | Affected |\n")
		b.WriteString("|-------|------|----------|----------|\n")
		for _, f := range group {
			affected := "-"
			if len(f.AffectedAssets) > 0 {
				affected = strings.Join(f.AffectedAssets, ", ")
			}
			b.WriteString(fmt.Sprintf("| %s | %.1f | %s | %s |\n",
				escapeCell(f.Title), f.CVSS, orDash(f.Category), escapeCell(affected)))
		}
		b.WriteString("\n")

		for _, f := range group {
			b.WriteString(fmt.Sprintf("### %s\n\n", f.Title))
			if f.CVE != "" {
				b.WriteString(fmt.Sprintf("**CVE:** %s\n\n", f.CVE))
			}
			if f.Description != "" {
				b.WriteString(f.Description + "\n\n")
			}
			b.WriteString(f.TechnicalDetails + "\n\n")
			if f.Remediation != "" {
				b.WriteString(fmt.Sprintf("**Remediation:** %s\n\n", f.Remediation))
			}
		}
	}
}

func writeSubdomains(b *strings.Builder, s SubdomainSection) {
	b.WriteString("## Subdomains\n\n")
	b.WriteString(fmt.Sprintf("**Total:** %d | **Active:** %d | **Inactive:** %d | **Takeover candidates:** %d\n\n",
		s.Total, s.Active, s.Inactive, s.VulnerableToTakeover))
	if len(s.Findings) == 0 {
		b.WriteString("None found.\n\n")
		return
	}
	b.WriteString("| Subdomain | Status | Technologies | Risks |\n")
	b.WriteString("|-----------|--------|--------------|-------|\n")
	for _, f := range s.Findings {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			f.Subdomain, f.Status, joinOrDash(f.Technologies), escapeCell(joinOrDash(f.Risks))))
	}
	b.WriteString("\n")
}

func writeRecommendations(b *strings.Builder, recs []Recommendation) {
	b.WriteString("## Recommendations\n\n")
	if len(recs) == 0 {
		b.WriteString("None.\n\n")
		return
	}
	b.WriteString("| Priority | Title | Effort | Timeline |\n")
	b.WriteString("|----------|-------|--------|----------|\n")
	for _, r := range recs {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", r.Priority, r.Title, r.Effort, r.Timeline))
	}
	b.WriteString("\n")
	for _, r := range recs {
		b.WriteString(fmt.Sprintf("- **%s:** %s. %s.\n", r.Title, r.Description, r.BusinessValue))
	}
	b.WriteString("\n")
}

func writeAppendices(b *strings.Builder, apps []Appendix) {
	for _, a := range apps {
		b.WriteString(fmt.Sprintf("## Appendix: %s\n\n", a.Title))
		b.WriteString("```\n")
		b.WriteString(strings.TrimRight(a.Content, "\n"))
		b.WriteString("\n```\n\n")
	}
}

// findingsBySeverity groups findings by severity, preserving their order.
func findingsBySeverity(findings []Finding) map[models.Severity][]Finding {
	out := make(map[models.Severity][]Finding)
	for _, f := range findings {
		out[f.Severity] = append(out[f.Severity], f)
	}
	return out
}

func severityLabel(sev models.Severity) string {
	s := string(sev)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
