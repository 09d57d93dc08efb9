package models_test

import (
	"strings"
	"testing"
	"time"

	"github.com/hakim/scandeck/internal/models"
	"github.com/stretchr/testify/require"
)

func vulns(sevs ...models.Severity) []models.Vulnerability {
	out := make([]models.Vulnerability, 0, len(sevs))
	for _, s := range sevs {
		out = append(out, models.Vulnerability{Title: string(s), Severity: s})
	}
	return out
}

func TestRiskLevelAndScore(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    []models.Vulnerability
		risk     models.Severity
		score    int
	}{
		{"none", nil, models.SeverityLow, 100},
		{"single low", vulns(models.SeverityLow), models.SeverityLow, 99},
		{"medium and low", vulns(models.SeverityMedium, models.SeverityLow), models.SeverityMedium, 94},
		{"high wins over medium", vulns(models.SeverityMedium, models.SeverityHigh), models.SeverityHigh, 80},
		{"critical", vulns(models.SeverityCritical, models.SeverityLow), models.SeverityCritical, 69},
		{"floored at zero", vulns(models.SeverityCritical, models.SeverityCritical, models.SeverityCritical, models.SeverityCritical), models.SeverityCritical, 0},
		{"info does not count", vulns(models.SeverityInfo), models.SeverityLow, 100},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			require.Equal(t, tt.risk, models.RiskLevel(tt.given))
			require.Equal(t, tt.score, models.Score(tt.given))
		})
	}
}

func TestNewScan(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tmpl := []models.PhaseSpec{{Name: "a"}, {Name: "b"}}

	s1 := models.NewScan(models.KindComprehensive, "example.com", tmpl, now)
	s2 := models.NewScan(models.KindComprehensive, "example.com", tmpl, now)

	require.NotEqual(t, s1.ID, s2.ID)
	require.True(t, strings.HasPrefix(s1.ID, "adv_scan_"))
	require.Equal(t, models.StatusPending, s1.Status)
	require.Equal(t, 0, s1.Progress)
	require.Len(t, s1.Phases, 2)
	for _, p := range s1.Phases {
		require.Equal(t, models.PhasePending, p.Status)
		require.Zero(t, p.Progress)
	}
	require.Equal(t, now, s1.StartTime)
	require.Nil(t, s1.EndTime)
}

func TestResultsMerge(t *testing.T) {
	t.Parallel()

	var r models.Results
	r.Merge(models.Results{
		Headers:    map[string]string{"Server": "nginx"},
		SSL:        &models.SSLInfo{Enabled: true, Version: "TLSv1.3"},
		Subdomains: []models.Subdomain{{Name: "www.example.com", IPs: []string{"10.0.0.1"}, Ports: []int{80}}},
		OpenPorts:  []models.Port{{Number: 22}},
	})
	r.Merge(models.Results{
		Headers:    map[string]string{"Server": "apache"},
		SSL:        &models.SSLInfo{Enabled: false},
		Subdomains: []models.Subdomain{{Name: "www.example.com", IPs: []string{"10.0.0.1", "10.0.0.2"}, Ports: []int{443}}, {Name: "api.example.com"}},
		OpenPorts:  []models.Port{{Number: 80}},
	})

	require.Equal(t, "nginx", r.Headers["Server"], "headers are written once")
	require.True(t, r.SSL.Enabled, "ssl is written once")
	require.Len(t, r.OpenPorts, 2)
	require.Len(t, r.Subdomains, 2)
	require.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, r.Subdomains[0].IPs)
	require.Equal(t, []int{80, 443}, r.Subdomains[0].Ports)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	s := models.NewScan(models.KindBasic, "example.com", []models.PhaseSpec{{Name: "a"}}, time.Now())
	s.Results.Merge(models.Results{
		Vulnerabilities: []models.Vulnerability{{Title: "x", Severity: models.SeverityHigh, References: []string{"r"}}},
		Headers:         map[string]string{"k": "v"},
	})
	end := time.Now()
	orig := end
	s.EndTime = &end

	c := s.Clone()
	require.Equal(t, *s, c)

	s.Phases[0].Status = models.PhaseRunning
	s.Results.Vulnerabilities[0].References[0] = "changed"
	s.Results.Headers["k"] = "changed"
	*s.EndTime = end.Add(time.Hour)

	require.Equal(t, models.PhasePending, c.Phases[0].Status)
	require.Equal(t, "r", c.Results.Vulnerabilities[0].References[0])
	require.Equal(t, "v", c.Results.Headers["k"])
	require.Equal(t, orig, *c.EndTime)
}
