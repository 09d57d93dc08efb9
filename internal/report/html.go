package report

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/hakim/scandeck/internal/models"
)

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"upper":  func(v any) string { return strings.ToUpper(toString(v)) },
	"color":  severityColor,
	"label":  severityLabel,
	"levels": func() []models.Severity { return severityOrder },
	"date":   func(d Document) string { return d.GeneratedAt.Format("2006-01-02 15:04 UTC") },
}).Parse(htmlSource))

// HTML renders doc as a standalone HTML page.
func HTML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func severityColor(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical:
		return "#ff0033"
	case models.SeverityHigh:
		return "#ff6b35"
	case models.SeverityMedium:
		return "#f7b731"
	case models.SeverityLow:
		return "#5f27cd"
	default:
		return "#666666"
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case models.Severity:
		return string(s)
	case models.ScanStatus:
		return string(s)
	case models.ScanKind:
		return string(s)
	default:
		return ""
	}
}

const htmlSource = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; line-height: 1.6; }
.header { background: #1a1d23; color: white; padding: 20px; border-radius: 8px; }
.section { margin: 30px 0; padding: 20px; border: 1px solid #ddd; border-radius: 8px; }
.critical { color: #ff0033; font-weight: bold; }
.high { color: #ff6b35; font-weight: bold; }
.medium { color: #f7b731; font-weight: bold; }
.low { color: #5f27cd; font-weight: bold; }
table { width: 100%; border-collapse: collapse; margin: 20px 0; }
th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
th { background-color: #f2f2f2; }
pre { background: #f6f6f6; padding: 12px; overflow-x: auto; }
</style>
</head>
<body>
<div class="header">
<h1>{{.Title}}</h1>
<p>Generated: {{date .}}</p>
<p>Target: {{.Target}}</p>
<p>Scan: {{.ScanID}} ({{.Kind}}, {{.Status}})</p>
<p>Risk Level: <span class="{{.Executive.RiskLevel}}">{{upper .Executive.RiskLevel}}</span></p>
</div>

<div class="section">
<h2>Executive Summary</h2>
<p>Security Score: {{.Executive.Score}}/100</p>
<p>Total Vulnerabilities: {{.Executive.TotalVulnerabilities}}</p>
<p>Critical Findings: {{.Executive.CriticalFindings}}</p>
<p>Business Impact: {{.Executive.BusinessImpact}}</p>
<p>Time to Remediate: {{.Executive.TimeToRemediate}}</p>
{{- if .Executive.KeyFindings}}
<ul>{{range .Executive.KeyFindings}}<li>{{.}}</li>{{end}}</ul>
{{- end}}
</div>

<div class="section">
<h2>Scan Details</h2>
<p>Scope: {{range $i, $s := .Details.Scope}}{{if $i}}, {{end}}{{$s}}{{end}}</p>
<p>Duration: {{.Details.Duration}}</p>
<p>Coverage: {{.Details.Coverage}}</p>
<p>Methodology: {{range $i, $s := .Details.Methodology}}{{if $i}}, {{end}}{{$s}}{{end}}</p>
</div>

<div class="section">
<h2>Vulnerability Summary</h2>
<table>
<tr><th>Severity</th><th>Count</th></tr>
{{- $summary := .Vulnerabilities.Summary}}
{{- range levels}}
<tr><td class="{{.}}">{{label .}}</td><td>{{$summary.Get .}}</td></tr>
{{- end}}
</table>
</div>

<div class="section">
<h2>Detailed Findings</h2>
{{- range .Vulnerabilities.Findings}}
<div style="margin: 20px 0; padding: 15px; border-left: 4px solid {{color .Severity}};">
<h3 class="{{.Severity}}">{{.Title}}</h3>
<p><strong>Severity:</strong> {{upper .Severity}}</p>
<p><strong>CVSS Score:</strong> {{printf "%.1f" .CVSS}}</p>
{{- if .CVE}}
<p><strong>CVE:</strong> {{.CVE}}</p>
{{- end}}
<p><strong>Description:</strong> {{.Description}}</p>
<p><strong>Impact:</strong> {{.Impact}}</p>
<p><strong>Remediation:</strong> {{.Remediation}}</p>
</div>
{{- else}}
<p>No vulnerabilities found.</p>
{{- end}}
</div>

{{- if .Subdomains.Findings}}
<div class="section">
<h2>Subdomains</h2>
<p>Total: {{.Subdomains.Total}} | Active: {{.Subdomains.Active}} | Takeover candidates: {{.Subdomains.VulnerableToTakeover}}</p>
<table>
<tr><th>Subdomain</th><th>Status</th><th>Risks</th></tr>
{{- range .Subdomains.Findings}}
<tr><td>{{.Subdomain}}</td><td>{{.Status}}</td><td>{{range $i, $r := .Risks}}{{if $i}}, {{end}}{{$r}}{{end}}</td></tr>
{{- end}}
</table>
</div>
{{- end}}

<div class="section">
<h2>Recommendations</h2>
{{- range .Recommendations}}
<div style="margin: 15px 0; padding: 10px; background: #f9f9f9; border-radius: 4px;">
<h4>{{.Title}} ({{upper .Priority}} Priority)</h4>
<p>{{.Description}}</p>
<p><strong>Timeline:</strong> {{.Timeline}}</p>
<p><strong>Business Value:</strong> {{.BusinessValue}}</p>
</div>
{{- end}}
</div>

{{- range .Appendices}}
<div class="section">
<h2>Appendix: {{.Title}}</h2>
<pre>{{.Content}}</pre>
</div>
{{- end}}
</body>
</html>
`
