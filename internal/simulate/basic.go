package simulate

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/pipeline"
)

// Fixed delays of the quick scan phases.
var basicDelays = map[string]time.Duration{
	"port_scan":          2000 * time.Millisecond,
	"service_detection":  1500 * time.Millisecond,
	"vulnerability_scan": 3000 * time.Millisecond,
	"subdomain_enum":     2000 * time.Millisecond,
	"risk_assessment":    1000 * time.Millisecond,
}

// kindDelay uses the fixed quick-scan delay for basic scans and the
// randomised web delay otherwise.
func (s *Simulator) kindDelay(name string, factor float64) delayFunc {
	web := s.webDelay(factor)
	return func(req pipeline.Request) time.Duration {
		if req.Kind == models.KindBasic {
			if d, ok := basicDelays[name]; ok {
				return d
			}
		}
		return web(req)
	}
}

func fixed(d time.Duration) delayFunc {
	return func(pipeline.Request) time.Duration { return d }
}

func (s *Simulator) registerBasic(h map[string]pipeline.Handler) {
	h["port_scan"] = s.handler(s.kindDelay("port_scan", 1.5), s.portScan)
	h["subdomain_enum"] = s.handler(s.kindDelay("subdomain_enum", 2), s.subdomainEnum)
	h["service_detection"] = s.handler(fixed(basicDelays["service_detection"]), s.serviceDetection)
	h["vulnerability_scan"] = s.handler(fixed(basicDelays["vulnerability_scan"]), s.vulnerabilityScan)
	h["risk_assessment"] = s.handler(fixed(basicDelays["risk_assessment"]), func(pipeline.Request) pipeline.Outcome {
		return pipeline.Outcome{}
	})
}

func (s *Simulator) portScan(req pipeline.Request) pipeline.Outcome {
	var ports []models.Port
	if req.Kind == models.KindBasic {
		ports = pick(s, commonPorts, 0.3)
	} else {
		ports = pick(s, detailedPorts, 0.7)
	}
	return pipeline.Outcome{
		Results:  models.Results{OpenPorts: ports},
		Findings: len(ports),
	}
}

func (s *Simulator) serviceDetection(pipeline.Request) pipeline.Outcome {
	techs := pick(s, serviceFingerprints, 0.4)
	for i := range techs {
		techs[i].Categories = slices.Clone(techs[i].Categories)
	}
	return pipeline.Outcome{
		Results:  models.Results{Technologies: techs},
		Findings: len(techs),
	}
}

func (s *Simulator) vulnerabilityScan(pipeline.Request) pipeline.Outcome {
	var vulns []models.Vulnerability
	for _, v := range basicVulnerabilities {
		if s.chance(0.5) {
			vulns = append(vulns, instantiate(v, "vuln_"+s.hex(8)))
		}
	}
	return pipeline.Outcome{
		Results:  models.Results{Vulnerabilities: vulns},
		Findings: len(vulns),
	}
}

func (s *Simulator) subdomainEnum(req pipeline.Request) pipeline.Outcome {
	domain := pipeline.CleanTarget(req.Target)
	words := []string{"www", "api", "admin", "staging", "dev", "blog", "shop", "mail"}
	keep := 0.4
	if req.Kind != models.KindBasic {
		words = []string{"www", "api", "admin", "staging", "dev", "blog", "mail", "ftp"}
		keep = 0.5
	}

	var subs []models.Subdomain
	for _, w := range pick(s, words, keep) {
		sub := models.Subdomain{
			Name:   fmt.Sprintf("%s.%s", w, domain),
			Status: "active",
			Source: "dns",
		}
		if req.Kind != models.KindBasic {
			sub.IPs = []string{s.ip("192.168")}
			if s.chance(0.2) {
				sub.Status = "unreachable"
			}
		}
		subs = append(subs, sub)
	}
	return pipeline.Outcome{
		Results:  models.Results{Subdomains: subs},
		Findings: len(subs),
	}
}

func (s *Simulator) reconnaissance(pipeline.Request) pipeline.Outcome {
	headers := maps.Clone(responseHeaders)
	return pipeline.Outcome{
		Results:  models.Results{Headers: headers},
		Findings: len(headers),
	}
}

// baseLabel returns the first label of a domain, "example" for
// "example.com".
func baseLabel(domain string) (label, parent string) {
	label, parent, ok := strings.Cut(domain, ".")
	if !ok {
		return domain, domain
	}
	return label, parent
}
