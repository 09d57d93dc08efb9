package simulate

import (
	"slices"
	"time"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/pipeline"
)

// technique is one enumeration source: a fixed lookup delay, a word list and
// the probability each word turns up.
type technique struct {
	source string
	delay  time.Duration
	words  []string
	keep   float64
}

var techniques = map[string]technique{
	"certificate_transparency": {"Certificate Transparency", 2000 * time.Millisecond,
		[]string{"www", "api", "mail", "ftp", "admin", "test", "staging", "dev", "app", "portal", "secure", "vpn", "cdn", "blog"}, 0.6},
	"dns_bruteforce": {"DNS Brute Force", 3000 * time.Millisecond,
		[]string{"mail", "remote", "blog", "webmail", "server", "ns1", "ns2", "smtp", "secure", "vpn", "m", "shop", "ftp", "cpanel", "whm"}, 0.4},
	"search_engine_dorking": {"Search Engine Dorking", 1500 * time.Millisecond,
		[]string{"support", "help", "docs", "download", "upload", "files", "images", "static", "assets", "cdn"}, 0.3},
	"reverse_dns": {"Reverse DNS", 2500 * time.Millisecond,
		[]string{"mx", "ns", "gateway", "router", "switch"}, 0.2},
	"archive_crawling": {"Archive Crawling", 1600 * time.Millisecond,
		[]string{"beta", "preview", "demo", "sandbox", "research"}, 0.25},
}

// Zone transfers usually fail; when one succeeds it leaks every internal name.
var zoneTransferNames = []string{"internal", "intranet", "corp", "lan"}

var takeoverNames = []string{"old", "legacy", "abandoned", "temp"}

// techniqueDelay is the lookup delay plus a 1-3s pause before the next
// technique.
func (s *Simulator) techniqueDelay(d time.Duration) delayFunc {
	return func(pipeline.Request) time.Duration {
		return d + time.Duration(1000+s.rng.Float64()*2000)*time.Millisecond
	}
}

func (s *Simulator) registerSubdomain(h map[string]pipeline.Handler) {
	for name, t := range techniques {
		h[name] = s.handler(s.techniqueDelay(t.delay), func(req pipeline.Request) pipeline.Outcome {
			domain := pipeline.CleanTarget(req.Target)
			var subs []models.Subdomain
			for _, w := range pick(s, t.words, t.keep) {
				subs = append(subs, s.host(w+"."+domain, t.source))
			}
			return found(subs)
		})
	}

	h["dns_zone_transfer"] = s.handler(s.techniqueDelay(1000*time.Millisecond), func(req pipeline.Request) pipeline.Outcome {
		if !s.chance(0.1) {
			return pipeline.Outcome{}
		}
		domain := pipeline.CleanTarget(req.Target)
		subs := make([]models.Subdomain, 0, len(zoneTransferNames))
		for _, w := range zoneTransferNames {
			subs = append(subs, s.host(w+"."+domain, "DNS Zone Transfer"))
		}
		return found(subs)
	})

	h["takeover_check"] = s.handler(s.techniqueDelay(1800*time.Millisecond), func(req pipeline.Request) pipeline.Outcome {
		domain := pipeline.CleanTarget(req.Target)
		var subs []models.Subdomain
		for _, w := range pick(s, takeoverNames, 0.05) {
			sub := s.host(w+"."+domain, "Subdomain Takeover Check")
			sub.Status = "inactive"
			sub.Issues = append(sub.Issues, "Potential Subdomain Takeover")
			subs = append(subs, sub)
		}
		return found(subs)
	})

	h["permutation_analysis"] = s.handler(s.techniqueDelay(2200*time.Millisecond), func(req pipeline.Request) pipeline.Outcome {
		label, parent := baseLabel(pipeline.CleanTarget(req.Target))
		perms := []string{label + "-dev", label + "-test", label + "-staging", label + "2", "new-" + label, "old-" + label}
		var subs []models.Subdomain
		for _, p := range pick(s, perms, 0.2) {
			subs = append(subs, s.host(p+"."+parent, "Permutation Analysis"))
		}
		return found(subs)
	})

	h["deep_scan"] = s.handler(fixed(phaseGap), s.deepScan)
}

// deepScan re-probes every active subdomain found so far.
func (s *Simulator) deepScan(req pipeline.Request) pipeline.Outcome {
	var (
		subs   []models.Subdomain
		issues int
	)
	for _, known := range req.Snapshot.Results.Subdomains {
		if known.Status != "active" {
			continue
		}
		sub := models.Subdomain{
			Name:         known.Name,
			Ports:        pick(s, hostPorts, 0.3),
			Technologies: pick(s, hostTechnologies, 0.4),
		}
		if s.chance(0.3) {
			sub.Issues = pick(s, hostIssues, 0.5)
			issues += len(sub.Issues)
		}
		if slices.Contains(sub.Ports, 443) || slices.Contains(known.Ports, 443) {
			sub.Certificates = []models.Certificate{s.certificate(known.Name)}
		}
		subs = append(subs, sub)
	}
	return pipeline.Outcome{
		Results:  models.Results{Subdomains: subs},
		Findings: issues,
	}
}

// host fabricates the probe result for a discovered name.
func (s *Simulator) host(name, source string) models.Subdomain {
	sub := models.Subdomain{Name: name, Status: "inactive", Source: source}
	if !s.chance(0.8) {
		return sub
	}
	sub.Status = "active"
	sub.IPs = []string{s.ip("")}
	sub.Ports = pick(s, hostPorts, 0.3)
	sub.Technologies = pick(s, hostTechnologies, 0.4)
	sub.HTTPStatus = 200
	if s.chance(0.1) {
		sub.HTTPStatus = 404
	}
	sub.ResponseTime = 50 + s.rng.IntN(500)
	return sub
}

func (s *Simulator) certificate(subject string) models.Certificate {
	now := s.now()
	return models.Certificate{
		Issuer:      "Let's Encrypt Authority X3",
		Subject:     subject,
		ValidFrom:   now.AddDate(0, 0, -30),
		ValidTo:     now.AddDate(0, 0, 90),
		Fingerprint: s.hex(40),
		SelfSigned:  s.chance(0.1),
	}
}

func found(subs []models.Subdomain) pipeline.Outcome {
	return pipeline.Outcome{
		Results:  models.Results{Subdomains: subs},
		Findings: len(subs),
	}
}
