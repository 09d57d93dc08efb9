package pipeline

import (
	"fmt"
	"slices"

	"github.com/hakim/scandeck/internal/models"
)

// Template is the ordered phase list a scan kind is created with.
type Template struct {
	Kind        models.ScanKind    `json:"kind"`
	Description string             `json:"description"`
	Phases      []models.PhaseSpec `json:"phases"`
}

// builtinTemplates is the registry of all known templates.
var builtinTemplates = map[models.ScanKind]Template{
	models.KindBasic: {
		Kind:        models.KindBasic,
		Description: "Quick vulnerability scan: ports, services, known issues, subdomains, risk",
		Phases: []models.PhaseSpec{
			{Name: "port_scan", Description: "Scanning for open ports"},
			{Name: "service_detection", Description: "Detecting services and versions"},
			{Name: "vulnerability_scan", Description: "Scanning for vulnerabilities"},
			{Name: "subdomain_enum", Description: "Enumerating subdomains"},
			{Name: "risk_assessment", Description: "Calculating risk level"},
		},
	},
	models.KindComprehensive: {
		Kind:        models.KindComprehensive,
		Description: "Full web application assessment covering the OWASP test categories",
		Phases: []models.PhaseSpec{
			{Name: "reconnaissance", Description: "Target reconnaissance and information gathering"},
			{Name: "port_scan", Description: "Port scanning and service discovery"},
			{Name: "subdomain_enum", Description: "Subdomain enumeration and DNS analysis"},
			{Name: "directory_scan", Description: "Directory and file discovery"},
			{Name: "tech_detection", Description: "Technology fingerprinting"},
			{Name: "ssl_analysis", Description: "SSL/TLS configuration analysis"},
			{Name: "form_analysis", Description: "Form discovery and analysis"},
			{Name: "sqli_test", Description: "SQL injection vulnerability testing"},
			{Name: "xss_test", Description: "Cross-site scripting (XSS) testing"},
			{Name: "csrf_test", Description: "Cross-site request forgery testing"},
			{Name: "auth_test", Description: "Authentication and authorization testing"},
			{Name: "file_inclusion", Description: "File inclusion vulnerability testing"},
			{Name: "command_injection", Description: "Command injection testing"},
			{Name: "xxe_test", Description: "XML external entity (XXE) testing"},
			{Name: "idor_test", Description: "Insecure direct object reference testing"},
			{Name: "security_headers", Description: "Security headers analysis"},
			{Name: "cookie_analysis", Description: "Cookie security analysis"},
			{Name: "rate_limiting", Description: "Rate limiting and DoS testing"},
			{Name: "api_testing", Description: "API security testing"},
			{Name: "final_analysis", Description: "Risk assessment and report generation"},
		},
	},
	models.KindSubdomain: {
		Kind:        models.KindSubdomain,
		Description: "Passive and active subdomain enumeration followed by a deep scan of live hosts",
		Phases: []models.PhaseSpec{
			{Name: "certificate_transparency", Description: "Certificate Transparency log search"},
			{Name: "dns_bruteforce", Description: "DNS brute force with a common wordlist"},
			{Name: "search_engine_dorking", Description: "Search engine dorking"},
			{Name: "dns_zone_transfer", Description: "DNS zone transfer attempt"},
			{Name: "reverse_dns", Description: "Reverse DNS sweep"},
			{Name: "takeover_check", Description: "Subdomain takeover check"},
			{Name: "permutation_analysis", Description: "Permutation analysis"},
			{Name: "archive_crawling", Description: "Web archive crawling"},
			{Name: "deep_scan", Description: "Deep scan of active subdomains"},
		},
	},
}

// Templates returns every built-in template ordered by kind.
func Templates() []Template {
	out := make([]Template, 0, len(builtinTemplates))
	for _, k := range models.Kinds() {
		out = append(out, cloneTemplate(builtinTemplates[k]))
	}
	return out
}

// GetTemplate returns the template for kind, or an error if there is none.
func GetTemplate(kind models.ScanKind) (Template, error) {
	t, ok := builtinTemplates[kind]
	if !ok {
		return Template{}, fmt.Errorf("%w %q (available: basic, comprehensive, subdomain)", ErrUnknownKind, kind)
	}
	return cloneTemplate(t), nil
}

// Return a copy so callers cannot mutate the registry.
func cloneTemplate(t Template) Template {
	t.Phases = slices.Clone(t.Phases)
	return t
}
