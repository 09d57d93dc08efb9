package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	pdfLine   = 5.5
	pdfIndent = 6.0
)

// severityColors tints the severity tag in front of each finding.
var severityColors = map[string][3]int{
	"critical": {153, 27, 27},
	"high":     {194, 65, 12},
	"medium":   {161, 98, 7},
	"low":      {21, 128, 61},
	"info":     {71, 85, 105},
}

// PDF renders doc as a paginated Letter document using the core Helvetica
// and Courier fonts. Text is translated to cp1252; runes outside it are
// replaced.
func PDF(doc Document) ([]byte, error) {
	pdf := newPDF(doc)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfWriter struct {
	*fpdf.Fpdf
	tr func(string) string
}

func newPDF(doc Document) *fpdf.Fpdf {
	f := fpdf.New("P", "mm", "Letter", "")
	w := &pdfWriter{Fpdf: f, tr: f.UnicodeTranslatorFromDescriptor("")}

	f.SetCompression(false)
	f.SetTitle(doc.Title, true)
	f.SetSubject(doc.Target, true)
	f.SetCreator("scandeck", true)
	f.SetCreationDate(doc.GeneratedAt)
	f.SetModificationDate(doc.GeneratedAt)
	f.SetMargins(18, 18, 18)
	f.SetAutoPageBreak(true, 18)
	f.AliasNbPages("")
	f.SetFooterFunc(func() {
		f.SetY(-14)
		f.SetFont("Helvetica", "I", 8)
		f.SetTextColor(100, 116, 139)
		f.CellFormat(0, 6, w.tr(fmt.Sprintf("%s  |  page %d of {nb}", doc.ScanID, f.PageNo())), "", 0, "C", false, 0, "")
	})
	f.AddPage()

	w.title(doc)
	w.executive(doc)
	w.findings(doc.Vulnerabilities)
	if doc.Subdomains.Total > 0 {
		w.subdomains(doc.Subdomains)
	}
	w.recommendations(doc.Recommendations)
	for _, a := range doc.Appendices {
		w.heading("Appendix: " + a.Title)
		w.SetFont("Courier", "", 8)
		w.MultiCell(0, 4, w.tr(a.Content), "", "L", false)
	}
	return f
}

func (w *pdfWriter) title(doc Document) {
	w.SetFont("Helvetica", "B", 18)
	w.SetTextColor(15, 23, 42)
	w.MultiCell(0, 9, w.tr(doc.Title), "", "L", false)
	w.Ln(2)
	w.SetFont("Helvetica", "", 10)
	w.SetTextColor(51, 65, 85)
	w.text("Target: " + doc.Target)
	w.text(fmt.Sprintf("Scan: %s (%s, %s)", doc.ScanID, doc.Kind, doc.Status))
	w.text("Generated: " + doc.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"))
	w.text("Duration: " + doc.Details.Duration)
}

func (w *pdfWriter) executive(doc Document) {
	e := doc.Executive
	s := doc.Vulnerabilities.Summary
	w.heading("Executive Summary")
	w.text("Risk Level: " + strings.ToUpper(string(e.RiskLevel)))
	w.text(fmt.Sprintf("Security Score: %d/100", e.Score))
	w.text(fmt.Sprintf("Vulnerabilities: %d (critical %d, high %d, medium %d, low %d, info %d)",
		e.TotalVulnerabilities, s.Critical, s.High, s.Medium, s.Low, s.Info))
	w.text("Business Impact: " + e.BusinessImpact)
	w.text("Time to Remediate: " + e.TimeToRemediate)
	if len(e.KeyFindings) > 0 {
		w.Ln(1)
		w.SetFont("Helvetica", "B", 10)
		w.text("Key Findings")
		w.SetFont("Helvetica", "", 10)
		for _, k := range e.KeyFindings {
			w.bullet(k)
		}
	}
}

func (w *pdfWriter) findings(sec VulnerabilitySection) {
	w.heading(fmt.Sprintf("Vulnerabilities (%d)", len(sec.Findings)))
	if len(sec.Findings) == 0 {
		w.text("No vulnerabilities found.")
		return
	}
	for i, f := range sec.Findings {
		c := severityColors[string(f.Severity)]
		w.SetFont("Helvetica", "B", 10)
		w.SetTextColor(c[0], c[1], c[2])
		w.CellFormat(22, pdfLine, strings.ToUpper(string(f.Severity)), "", 0, "L", false, 0, "")
		w.SetTextColor(15, 23, 42)
		header := fmt.Sprintf("%d. %s (CVSS %.1f)", i+1, f.Title, f.CVSS)
		if f.CVE != "" {
			header += " " + f.CVE
		}
		w.MultiCell(0, pdfLine, w.tr(header), "", "L", false)

		w.SetFont("Helvetica", "", 9)
		w.SetTextColor(51, 65, 85)
		for _, line := range []string{
			labelled("Category", f.Category),
			labelled("Description", f.Description),
			labelled("Impact", f.Impact),
			labelled("Remediation", f.Remediation),
			labelled("Affected", strings.Join(f.AffectedAssets, ", ")),
		} {
			if line != "" {
				w.SetX(w.leftMargin() + pdfIndent)
				w.MultiCell(0, 4.5, w.tr(line), "", "L", false)
			}
		}
		w.Ln(1.5)
	}
}

func (w *pdfWriter) subdomains(sec SubdomainSection) {
	w.heading(fmt.Sprintf("Subdomains (%d, %d active, %d takeover candidates)",
		sec.Total, sec.Active, sec.VulnerableToTakeover))
	w.SetFont("Helvetica", "", 9)
	for _, s := range sec.Findings {
		line := fmt.Sprintf("%s [%s]", s.Subdomain, s.Status)
		if len(s.Technologies) > 0 {
			line += "  " + strings.Join(s.Technologies, ", ")
		}
		if len(s.Risks) > 0 {
			line += "  risks: " + strings.Join(s.Risks, "; ")
		}
		w.bullet(line)
	}
}

func (w *pdfWriter) recommendations(recs []Recommendation) {
	if len(recs) == 0 {
		return
	}
	w.heading("Recommendations")
	for _, r := range recs {
		w.SetFont("Helvetica", "B", 10)
		w.text(fmt.Sprintf("[%s] %s (%s)", strings.ToUpper(r.Priority), r.Title, r.Timeline))
		w.SetFont("Helvetica", "", 9)
		w.SetX(w.leftMargin() + pdfIndent)
		w.MultiCell(0, 4.5, w.tr(r.Description), "", "L", false)
		w.Ln(1)
	}
}

func (w *pdfWriter) heading(s string) {
	w.Ln(4)
	w.SetFont("Helvetica", "B", 13)
	w.SetTextColor(15, 23, 42)
	w.MultiCell(0, 7, w.tr(s), "B", "L", false)
	w.Ln(2)
	w.SetFont("Helvetica", "", 10)
	w.SetTextColor(51, 65, 85)
}

func (w *pdfWriter) text(s string) {
	w.MultiCell(0, pdfLine, w.tr(s), "", "L", false)
}

func (w *pdfWriter) bullet(s string) {
	w.SetX(w.leftMargin() + pdfIndent)
	w.MultiCell(0, pdfLine, w.tr("- "+s), "", "L", false)
}

func (w *pdfWriter) leftMargin() float64 {
	left, _, _, _ := w.GetMargins()
	return left
}

func labelled(label, value string) string {
	if value == "" {
		return ""
	}
	return label + ": " + value
}
