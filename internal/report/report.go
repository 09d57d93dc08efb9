// Package report turns a scan record into a structured security report and
// renders it as JSON, HTML, Markdown or PDF.
package report

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hakim/scandeck/internal/models"
)

// Document is the full report for one scan.
type Document struct {
	Title           string               `json:"title"`
	ScanID          string               `json:"scan_id"`
	Kind            models.ScanKind      `json:"kind"`
	Target          string               `json:"target"`
	Status          models.ScanStatus    `json:"status"`
	GeneratedAt     time.Time            `json:"generated_at"`
	Executive       ExecutiveSummary     `json:"executive_summary"`
	Details         ScanDetails          `json:"scan_details"`
	Vulnerabilities VulnerabilitySection `json:"vulnerabilities"`
	Subdomains      SubdomainSection     `json:"subdomains"`
	Recommendations []Recommendation     `json:"recommendations"`
	Appendices      []Appendix           `json:"appendices"`
}

type ExecutiveSummary struct {
	RiskLevel            models.Severity `json:"risk_level"`
	Score                int             `json:"score"`
	TotalVulnerabilities int             `json:"total_vulnerabilities"`
	CriticalFindings     int             `json:"critical_findings"`
	KeyFindings          []string        `json:"key_findings"`
	BusinessImpact       string          `json:"business_impact"`
	TimeToRemediate      string          `json:"time_to_remediate"`
}

type ScanDetails struct {
	Scope       []string `json:"scope"`
	Methodology []string `json:"methodology"`
	Tools       []string `json:"tools"`
	Duration    string   `json:"duration"`
	Coverage    string   `json:"coverage"`
	Limitations []string `json:"limitations"`
	Phases      int      `json:"phases"`
	Requests    int      `json:"requests"`
}

// SeverityCounts is the per-severity tally of findings.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Get returns the count for sev.
func (c SeverityCounts) Get(sev models.Severity) int {
	switch sev {
	case models.SeverityCritical:
		return c.Critical
	case models.SeverityHigh:
		return c.High
	case models.SeverityMedium:
		return c.Medium
	case models.SeverityLow:
		return c.Low
	default:
		return c.Info
	}
}

type Finding struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Severity         models.Severity `json:"severity"`
	CVSS             float64         `json:"cvss"`
	CVE              string          `json:"cve,omitempty"`
	Category         string          `json:"category,omitempty"`
	Description      string          `json:"description,omitempty"`
	TechnicalDetails string          `json:"technical_details"`
	ProofOfConcept   string          `json:"proof_of_concept"`
	Impact           string          `json:"impact,omitempty"`
	Remediation      string          `json:"remediation,omitempty"`
	References       []string        `json:"references"`
	AffectedAssets   []string        `json:"affected_assets"`
}

type Trends struct {
	MostCommon   string `json:"most_common"`
	Riskiest     string `json:"riskiest"`
	EasiestToFix string `json:"easiest_to_fix"`
}

type VulnerabilitySection struct {
	Summary  SeverityCounts `json:"summary"`
	Findings []Finding      `json:"findings"`
	Trends   Trends         `json:"trends"`
}

type SubdomainFinding struct {
	Subdomain    string   `json:"subdomain"`
	Status       string   `json:"status"`
	Risks        []string `json:"risks"`
	Technologies []string `json:"technologies"`
}

type SubdomainSection struct {
	Total                int                `json:"total"`
	Active               int                `json:"active"`
	Inactive             int                `json:"inactive"`
	VulnerableToTakeover int                `json:"vulnerable_to_takeover"`
	Findings             []SubdomainFinding `json:"findings"`
}

type Recommendation struct {
	Priority      string `json:"priority"`
	Category      string `json:"category"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Effort        string `json:"effort"`
	Cost          string `json:"cost"`
	Timeline      string `json:"timeline"`
	BusinessValue string `json:"business_value"`
}

type Appendix struct {
	Title   string `json:"title"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// severityOrder defines the display order for vulnerability sections (most severe first).
var severityOrder = []models.Severity{
	models.SeverityCritical,
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
	models.SeverityInfo,
}

// takeoverIssue is the issue label the enumeration attaches to takeover candidates.
const takeoverIssue = "Potential Subdomain Takeover"

// Build assembles the report for rec. Risk level and score are taken from
// the record's statistics when the scan completed and recomputed from the
// results otherwise.
func Build(rec models.ScanRecord) Document {
	return build(rec, time.Now().UTC())
}

func build(rec models.ScanRecord, now time.Time) Document {
	vulns := rec.Results.Vulnerabilities

	doc := Document{
		Title:           title(rec.Kind),
		ScanID:          rec.ID,
		Kind:            rec.Kind,
		Target:          rec.Target,
		Status:          rec.Status,
		GeneratedAt:     now,
		Details:         scanDetails(rec),
		Vulnerabilities: vulnerabilitySection(vulns),
		Subdomains:      subdomainSection(rec.Results.Subdomains),
		Recommendations: recommendations(rec),
		Appendices:      appendices(rec),
	}

	risk, score := rec.Statistics.RiskLevel, rec.Statistics.Score
	if rec.Status != models.StatusCompleted {
		risk, score = models.RiskLevel(vulns), models.Score(vulns)
	}
	doc.Executive = ExecutiveSummary{
		RiskLevel:            risk,
		Score:                score,
		TotalVulnerabilities: len(vulns),
		CriticalFindings:     doc.Vulnerabilities.Summary.Critical,
		KeyFindings:          keyFindings(vulns),
		BusinessImpact:       businessImpact(risk),
		TimeToRemediate:      timeToRemediate(doc.Vulnerabilities.Summary),
	}
	return doc
}

func title(kind models.ScanKind) string {
	switch kind {
	case models.KindComprehensive:
		return "Comprehensive Security Assessment Report"
	case models.KindSubdomain:
		return "Subdomain Enumeration Report"
	default:
		return "Vulnerability Assessment Report"
	}
}

func scanDetails(rec models.ScanRecord) ScanDetails {
	d := ScanDetails{
		Scope:    []string{cmp.Or(rec.Target, "Unknown target")},
		Duration: formatDuration(rec),
		Phases:   len(rec.Phases),
		Requests: rec.Statistics.TotalRequests,
	}
	switch rec.Kind {
	case models.KindSubdomain:
		d.Methodology = []string{"Certificate Transparency Logs", "DNS Brute Force", "Search Engine Reconnaissance", "Archive Analysis"}
		d.Tools = []string{"Certificate Transparency Scanner", "DNS Enumeration Tools", "Subdomain Discovery Engine", "Archive Crawler"}
		d.Coverage = "Public DNS records, certificate logs, search engines, web archives"
		d.Limitations = []string{"Internal DNS records not accessible", "Some subdomains may be filtered by CDN", "Rate limiting may affect completeness"}
	case models.KindComprehensive:
		d.Methodology = []string{"OWASP Testing Guide", "NIST Cybersecurity Framework", "Certificate Transparency Analysis", "DNS Reconnaissance"}
		d.Tools = []string{"Vulnerability Scanner", "Subdomain Enumeration Suite", "Port Scanner", "SSL/TLS Analyzer", "Web Application Tester"}
		d.Coverage = "Complete external attack surface assessment"
		d.Limitations = []string{"External testing perspective only", "No authenticated testing performed", "Social engineering not included"}
	default:
		d.Methodology = []string{"OWASP Testing Guide", "NIST Cybersecurity Framework", "PTES (Penetration Testing Execution Standard)"}
		d.Tools = []string{"Custom Vulnerability Scanner", "Port Scanner", "Web Application Scanner", "SSL/TLS Analyzer"}
		d.Coverage = "Web application, network services, SSL/TLS configuration"
		d.Limitations = []string{"Testing performed from external perspective only", "No social engineering testing conducted", "Physical security not assessed"}
	}
	return d
}

func formatDuration(rec models.ScanRecord) string {
	if rec.EndTime == nil {
		return "Unknown"
	}
	return rec.Duration().Round(time.Second).String()
}

func vulnerabilitySection(vulns []models.Vulnerability) VulnerabilitySection {
	sec := VulnerabilitySection{Findings: make([]Finding, 0, len(vulns))}
	for _, v := range vulns {
		switch v.Severity {
		case models.SeverityCritical:
			sec.Summary.Critical++
		case models.SeverityHigh:
			sec.Summary.High++
		case models.SeverityMedium:
			sec.Summary.Medium++
		case models.SeverityLow:
			sec.Summary.Low++
		default:
			sec.Summary.Info++
		}
		sec.Findings = append(sec.Findings, finding(v))
	}
	sec.Trends = Trends{
		MostCommon:   mostCommonCategory(vulns),
		Riskiest:     firstTitle(vulns, models.SeverityCritical),
		EasiestToFix: firstTitle(vulns, models.SeverityLow),
	}
	return sec
}

func finding(v models.Vulnerability) Finding {
	f := Finding{
		ID:             v.ID,
		Title:          v.Title,
		Severity:       v.Severity,
		CVSS:           v.CVSS,
		CVE:            v.CVE,
		Category:       v.Category,
		Description:    v.Description,
		Impact:         v.Impact,
		Remediation:    v.Remediation,
		References:     slices.Clone(v.References),
		AffectedAssets: []string{},
	}
	if f.CVSS == 0 {
		f.CVSS = defaultCVSS(v.Severity)
	}
	if f.References == nil {
		f.References = []string{}
	}
	for _, p := range v.Paths {
		f.AffectedAssets = append(f.AffectedAssets, p.Path)
	}

	vector := "multiple vectors"
	if len(v.Paths) > 0 {
		vector = v.Paths[0].Path
	}
	impact := "compromise security"
	if v.Impact != "" {
		impact = strings.ToLower(v.Impact)
	}
	f.TechnicalDetails = fmt.Sprintf("The vulnerability exists in the %s functionality and can be exploited through %s. This issue allows attackers to %s.",
		cmp.Or(v.Category, "affected"), vector, impact)

	f.ProofOfConcept = "Proof of concept available upon request due to sensitivity."
	if len(v.Paths) > 0 && v.Paths[0].Request != "" {
		f.ProofOfConcept = fmt.Sprintf("Request:\n%s\n\nResponse:\n%s", v.Paths[0].Request, cmp.Or(v.Paths[0].Response, "See evidence above"))
	}
	return f
}

// defaultCVSS is the midpoint of the CVSS band for sev.
func defaultCVSS(sev models.Severity) float64 {
	switch sev {
	case models.SeverityCritical:
		return 9.5
	case models.SeverityHigh:
		return 8.0
	case models.SeverityMedium:
		return 5.5
	case models.SeverityLow:
		return 2.5
	default:
		return 0.5
	}
}

// mostCommonCategory returns the category seen most often; ties go to the
// category seen first.
func mostCommonCategory(vulns []models.Vulnerability) string {
	counts := make(map[string]int)
	var order []string
	for _, v := range vulns {
		if v.Category == "" {
			continue
		}
		if counts[v.Category] == 0 {
			order = append(order, v.Category)
		}
		counts[v.Category]++
	}
	best := "None"
	for _, c := range order {
		if best == "None" || counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

func firstTitle(vulns []models.Vulnerability, sev models.Severity) string {
	for _, v := range vulns {
		if v.Severity == sev {
			return v.Title
		}
	}
	return "None"
}

// keyFindings lists up to three critical or high titles, most severe first.
func keyFindings(vulns []models.Vulnerability) []string {
	serious := slices.DeleteFunc(slices.Clone(vulns), func(v models.Vulnerability) bool {
		return v.Severity.Rank() < models.SeverityHigh.Rank()
	})
	slices.SortStableFunc(serious, func(a, b models.Vulnerability) int {
		return b.Severity.Rank() - a.Severity.Rank()
	})
	out := []string{}
	for _, v := range serious[:min(3, len(serious))] {
		out = append(out, v.Title)
	}
	return out
}

func businessImpact(risk models.Severity) string {
	switch risk {
	case models.SeverityCritical:
		return "Immediate risk of data breach, system compromise, and significant financial or reputational damage"
	case models.SeverityHigh:
		return "High risk of unauthorized access and potential data exposure"
	case models.SeverityMedium:
		return "Moderate security risks that could be exploited by determined attackers"
	default:
		return "Low security risks with minimal business impact"
	}
}

func timeToRemediate(c SeverityCounts) string {
	switch {
	case c.Critical > 0:
		return "1-2 weeks"
	case c.High > 0:
		return "2-4 weeks"
	default:
		return "4-8 weeks"
	}
}

func subdomainSection(subs []models.Subdomain) SubdomainSection {
	sec := SubdomainSection{Total: len(subs), Findings: make([]SubdomainFinding, 0, len(subs))}
	for _, s := range subs {
		switch s.Status {
		case "active":
			sec.Active++
		case "inactive":
			sec.Inactive++
		}
		if slices.Contains(s.Issues, takeoverIssue) {
			sec.VulnerableToTakeover++
		}
		sec.Findings = append(sec.Findings, SubdomainFinding{
			Subdomain:    s.Name,
			Status:       s.Status,
			Risks:        orEmpty(s.Issues),
			Technologies: orEmpty(s.Technologies),
		})
	}
	return sec
}

func recommendations(rec models.ScanRecord) []Recommendation {
	switch rec.Kind {
	case models.KindSubdomain:
		return subdomainRecommendations()
	case models.KindComprehensive:
		return append(vulnRecommendations(rec.Results.Vulnerabilities), subdomainRecommendations()...)
	default:
		return vulnRecommendations(rec.Results.Vulnerabilities)
	}
}

func vulnRecommendations(vulns []models.Vulnerability) []Recommendation {
	var recs []Recommendation
	if slices.ContainsFunc(vulns, func(v models.Vulnerability) bool { return v.Severity == models.SeverityCritical }) {
		recs = append(recs, Recommendation{
			Priority:      "immediate",
			Category:      "Security",
			Title:         "Address Critical Vulnerabilities",
			Description:   "Immediately patch all critical security vulnerabilities to prevent system compromise",
			Effort:        "high",
			Cost:          "medium",
			Timeline:      "1-2 days",
			BusinessValue: "Prevents potential data breaches and system compromise",
		})
	}
	return append(recs, Recommendation{
		Priority:      "high",
		Category:      "Security Policy",
		Title:         "Implement Security Headers",
		Description:   "Deploy comprehensive security headers including CSP, HSTS, and X-Frame-Options",
		Effort:        "low",
		Cost:          "low",
		Timeline:      "1 week",
		BusinessValue: "Improves overall security posture with minimal effort",
	})
}

func subdomainRecommendations() []Recommendation {
	return []Recommendation{
		{
			Priority:      "high",
			Category:      "Asset Management",
			Title:         "Subdomain Inventory Management",
			Description:   "Maintain an accurate inventory of all subdomains and regularly audit for unauthorized additions",
			Effort:        "medium",
			Cost:          "low",
			Timeline:      "2 weeks",
			BusinessValue: "Reduces attack surface and improves security visibility",
		},
		{
			Priority:      "medium",
			Category:      "DNS Security",
			Title:         "Implement DNS Security Controls",
			Description:   "Configure DNS security controls to prevent subdomain takeover attacks",
			Effort:        "medium",
			Cost:          "medium",
			Timeline:      "3 weeks",
			BusinessValue: "Prevents potential brand damage and data exposure",
		},
	}
}

func appendices(rec models.ScanRecord) []Appendix {
	phases, _ := json.MarshalIndent(rec.Phases, "", "  ")
	out := []Appendix{
		{Title: "Scan Configuration", Type: "technical", Content: string(phases)},
		{Title: "Phase Timeline", Type: "technical", Content: phaseTimeline(rec.Phases)},
	}
	if rec.Kind == models.KindBasic {
		return out
	}

	names := make([]string, 0, len(rec.Phases))
	for _, p := range rec.Phases {
		names = append(names, p.Description)
	}
	subs, _ := json.MarshalIndent(orEmpty(rec.Results.Subdomains), "", "  ")
	return append(out,
		Appendix{Title: "Enumeration Techniques", Type: "methodology", Content: strings.Join(names, "\n")},
		Appendix{Title: "Raw Subdomain Data", Type: "evidence", Content: string(subs)},
	)
}

func phaseTimeline(phases []models.PhaseRecord) string {
	var b strings.Builder
	for _, p := range phases {
		fmt.Fprintf(&b, "%-26s %-10s %8s  findings=%d", p.Name, p.Status, p.Duration.Round(time.Millisecond), p.Findings)
		if p.Error != "" {
			fmt.Fprintf(&b, "  error=%s", p.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
