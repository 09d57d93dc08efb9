package simulate

import (
	"slices"
	"time"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/pipeline"
)

// Gap between two comprehensive phases.
const phaseGap = 500 * time.Millisecond

// webDelay is a 1-3s base times factor, plus the inter-phase gap.
func (s *Simulator) webDelay(factor float64) delayFunc {
	return func(pipeline.Request) time.Duration {
		base := 1000 + s.rng.Float64()*2000
		return time.Duration(base*factor)*time.Millisecond + phaseGap
	}
}

func (s *Simulator) registerWeb(h map[string]pipeline.Handler) {
	h["reconnaissance"] = s.handler(s.webDelay(1), s.reconnaissance)
	h["directory_scan"] = s.handler(s.webDelay(1.8), func(pipeline.Request) pipeline.Outcome {
		dirs := pick(s, directories, 0.6)
		return pipeline.Outcome{Results: models.Results{Directories: dirs}, Findings: len(dirs)}
	})
	h["tech_detection"] = s.handler(s.webDelay(1), func(pipeline.Request) pipeline.Outcome {
		techs := pick(s, webTechnologies, 0.6)
		for i := range techs {
			techs[i].Categories = slices.Clone(techs[i].Categories)
		}
		return pipeline.Outcome{Results: models.Results{Technologies: techs}, Findings: len(techs)}
	})
	h["ssl_analysis"] = s.handler(s.webDelay(1), s.sslAnalysis)
	h["form_analysis"] = s.handler(s.webDelay(1), func(pipeline.Request) pipeline.Outcome {
		out := slices.Clone(forms)
		for i := range out {
			out[i].Inputs = slices.Clone(out[i].Inputs)
		}
		return pipeline.Outcome{Results: models.Results{Forms: out}, Findings: len(out)}
	})
	h["sqli_test"] = s.handler(s.webDelay(2), s.probe(sqliFinding))
	h["xss_test"] = s.handler(s.webDelay(1.5), s.probe(xssFinding))
	h["csrf_test"] = s.handler(s.webDelay(1), s.probe(csrfFinding))
	h["auth_test"] = s.handler(s.webDelay(1.2), s.probe(authFinding))
	h["file_inclusion"] = s.handler(s.webDelay(1), s.probe(lfiFinding))
	h["command_injection"] = s.handler(s.webDelay(1), s.probe(cmdFinding))
	h["security_headers"] = s.handler(s.webDelay(0.5), s.probe(headersFinding))
	h["cookie_analysis"] = s.handler(s.webDelay(0.5), func(req pipeline.Request) pipeline.Outcome {
		out := s.probe(cookieFinding)(req)
		out.Results.Cookies = slices.Clone(cookies)
		return out
	})
}

// probe reports f with its configured probability.
func (s *Simulator) probe(f webFinding) generator {
	return func(pipeline.Request) pipeline.Outcome {
		if !s.chance(f.probability) {
			return pipeline.Outcome{}
		}
		v := instantiate(f.vuln, "vuln_"+f.tag+"_"+s.hex(8))
		return pipeline.Outcome{
			Results:  models.Results{Vulnerabilities: []models.Vulnerability{v}},
			Findings: 1,
		}
	}
}

func (s *Simulator) sslAnalysis(req pipeline.Request) pipeline.Outcome {
	now := s.now()
	ssl := &models.SSLInfo{
		Enabled: true,
		Version: "TLSv1.3",
		Cipher:  "TLS_AES_256_GCM_SHA384",
		Certificate: &models.Certificate{
			Issuer:     "Let's Encrypt Authority X3",
			Subject:    pipeline.CleanTarget(req.Target),
			ValidFrom:  now.AddDate(0, 0, -30),
			ValidTo:    now.AddDate(0, 0, 90),
			SelfSigned: false,
		},
	}
	return pipeline.Outcome{Results: models.Results{SSL: ssl}, Findings: 1}
}
