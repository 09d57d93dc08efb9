package models

import (
	"maps"
	"slices"
	"time"
)

// Port represents an open port with service information
type Port struct {
	Number  int    `json:"number"`
	Service string `json:"service,omitempty"`
	Version string `json:"version,omitempty"`
	Banner  string `json:"banner,omitempty"`
}

// VulnerabilityPath is one request/response pair demonstrating a finding
type VulnerabilityPath struct {
	Path       string   `json:"path"`
	Method     string   `json:"method"`
	Parameters []string `json:"parameters,omitempty"`
	Evidence   string   `json:"evidence,omitempty"`
	Request    string   `json:"request,omitempty"`
	Response   string   `json:"response,omitempty"`
}

// Vulnerability represents a discovered security issue
type Vulnerability struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Severity    Severity            `json:"severity"`
	Description string              `json:"description,omitempty"`
	Category    string              `json:"category,omitempty"`
	CVE         string              `json:"cve,omitempty"`
	CVSS        float64             `json:"cvss,omitempty"`
	Port        int                 `json:"port,omitempty"`
	Service     string              `json:"service,omitempty"`
	Paths       []VulnerabilityPath `json:"paths,omitempty"`
	Remediation string              `json:"remediation,omitempty"`
	References  []string            `json:"references,omitempty"`
	Impact      string              `json:"impact,omitempty"`
	Likelihood  string              `json:"likelihood,omitempty"`
	Confidence  string              `json:"confidence,omitempty"`
}

// Certificate describes a TLS certificate seen on a host
type Certificate struct {
	Issuer      string    `json:"issuer"`
	Subject     string    `json:"subject"`
	ValidFrom   time.Time `json:"valid_from,omitempty"`
	ValidTo     time.Time `json:"valid_to"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	SelfSigned  bool      `json:"self_signed"`
}

// Subdomain represents a discovered subdomain
type Subdomain struct {
	Name         string        `json:"name"`
	IPs          []string      `json:"ips,omitempty"`
	Status       string        `json:"status"`
	Source       string        `json:"source,omitempty"`
	Ports        []int         `json:"ports,omitempty"`
	Technologies []string      `json:"technologies,omitempty"`
	Certificates []Certificate `json:"certificates,omitempty"`
	Issues       []string      `json:"issues,omitempty"`
	HTTPStatus   int           `json:"http_status,omitempty"`
	ResponseTime int           `json:"response_time_ms,omitempty"`
}

// Technology is a fingerprinted component of the target stack
type Technology struct {
	Name       string   `json:"name"`
	Version    string   `json:"version,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// Directory is a discovered path and the status it answered with
type Directory struct {
	Path   string `json:"path"`
	Status int    `json:"status"`
	Size   int    `json:"size,omitempty"`
}

// Form is an HTML form found on the target
type Form struct {
	Action string   `json:"action"`
	Method string   `json:"method"`
	Inputs []string `json:"inputs"`
}

// Cookie describes the security flags of a cookie set by the target
type Cookie struct {
	Name     string `json:"name"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only"`
	SameSite string `json:"same_site,omitempty"`
}

// SSLInfo summarises the TLS configuration of the target
type SSLInfo struct {
	Enabled     bool         `json:"enabled"`
	Version     string       `json:"version,omitempty"`
	Cipher      string       `json:"cipher,omitempty"`
	Certificate *Certificate `json:"certificate,omitempty"`
}

// Results is the aggregate bag of typed sub-results collected by the phases
// of one scan.
type Results struct {
	OpenPorts       []Port            `json:"open_ports"`
	Vulnerabilities []Vulnerability   `json:"vulnerabilities"`
	Subdomains      []Subdomain       `json:"subdomains"`
	Technologies    []Technology      `json:"technologies"`
	Directories     []Directory       `json:"directories"`
	Forms           []Form            `json:"forms"`
	Headers         map[string]string `json:"headers,omitempty"`
	Cookies         []Cookie          `json:"cookies"`
	SSL             *SSLInfo          `json:"ssl,omitempty"`
}

// Merge folds a phase's result slice into r. List fields append, subdomains
// are merged by name, and Headers/SSL keep whichever value was written first.
func (r *Results) Merge(s Results) {
	r.OpenPorts = append(r.OpenPorts, s.OpenPorts...)
	r.Vulnerabilities = append(r.Vulnerabilities, s.Vulnerabilities...)
	r.Technologies = append(r.Technologies, s.Technologies...)
	r.Directories = append(r.Directories, s.Directories...)
	r.Forms = append(r.Forms, s.Forms...)
	r.Cookies = append(r.Cookies, s.Cookies...)
	r.Subdomains = MergeSubdomains(r.Subdomains, s.Subdomains)

	if r.Headers == nil && len(s.Headers) > 0 {
		r.Headers = maps.Clone(s.Headers)
	}
	if r.SSL == nil && s.SSL != nil {
		ssl := *s.SSL
		if s.SSL.Certificate != nil {
			cert := *s.SSL.Certificate
			ssl.Certificate = &cert
		}
		r.SSL = &ssl
	}
}

// MergeSubdomains appends incoming entries to existing, folding entries that
// share a name into the one already present.
func MergeSubdomains(existing, incoming []Subdomain) []Subdomain {
	for _, in := range incoming {
		idx := slices.IndexFunc(existing, func(s Subdomain) bool { return s.Name == in.Name })
		if idx < 0 {
			existing = append(existing, in)
			continue
		}
		cur := &existing[idx]
		cur.IPs = union(cur.IPs, in.IPs)
		cur.Ports = union(cur.Ports, in.Ports)
		cur.Technologies = union(cur.Technologies, in.Technologies)
		cur.Issues = union(cur.Issues, in.Issues)
		cur.Certificates = append(cur.Certificates, in.Certificates...)
	}
	return existing
}

// CountBySeverity tallies vulnerabilities per severity.
func (r *Results) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, v := range r.Vulnerabilities {
		counts[v.Severity]++
	}
	return counts
}

// Clone returns a deep copy of r.
func (r Results) Clone() Results {
	out := Results{
		OpenPorts:    slices.Clone(r.OpenPorts),
		Technologies: slices.Clone(r.Technologies),
		Directories:  slices.Clone(r.Directories),
		Forms:        slices.Clone(r.Forms),
		Headers:      maps.Clone(r.Headers),
		Cookies:      slices.Clone(r.Cookies),
	}
	for i := range out.Technologies {
		out.Technologies[i].Categories = slices.Clone(out.Technologies[i].Categories)
	}
	for i := range out.Forms {
		out.Forms[i].Inputs = slices.Clone(out.Forms[i].Inputs)
	}
	out.Vulnerabilities = slices.Clone(r.Vulnerabilities)
	for i := range out.Vulnerabilities {
		v := &out.Vulnerabilities[i]
		v.References = slices.Clone(v.References)
		v.Paths = slices.Clone(v.Paths)
		for j := range v.Paths {
			v.Paths[j].Parameters = slices.Clone(v.Paths[j].Parameters)
		}
	}
	out.Subdomains = slices.Clone(r.Subdomains)
	for i := range out.Subdomains {
		s := &out.Subdomains[i]
		s.IPs = slices.Clone(s.IPs)
		s.Ports = slices.Clone(s.Ports)
		s.Technologies = slices.Clone(s.Technologies)
		s.Issues = slices.Clone(s.Issues)
		s.Certificates = slices.Clone(s.Certificates)
	}
	if r.SSL != nil {
		ssl := *r.SSL
		if r.SSL.Certificate != nil {
			cert := *r.SSL.Certificate
			ssl.Certificate = &cert
		}
		out.SSL = &ssl
	}
	return out
}

func union[T comparable](dst, src []T) []T {
	for _, v := range src {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
