package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/scandeck/internal/models"
)

func record(id string, r models.Results) models.ScanRecord {
	return models.ScanRecord{ID: id, Target: "example.com", Results: r}
}

func TestComputeDiff(t *testing.T) {
	prev := record("scan_1", models.Results{
		OpenPorts: []models.Port{{Number: 22, Service: "ssh"}, {Number: 80, Service: "http"}},
		Vulnerabilities: []models.Vulnerability{
			{Title: "Weak TLS", Severity: models.SeverityHigh, Category: "Crypto"},
			{Title: "Old jQuery", Severity: models.SeverityLow, Category: "Components"},
		},
		Subdomains: []models.Subdomain{
			{Name: "www.example.com", Status: "active"},
			{Name: "old.example.com", Status: "inactive", Issues: []string{takeoverIssue}},
			{Name: "dev.example.com", Status: "inactive", Issues: []string{takeoverIssue}},
			{Name: "cdn.example.com", Status: "inactive", Issues: []string{takeoverIssue}},
		},
	})
	cur := record("scan_2", models.Results{
		OpenPorts: []models.Port{{Number: 443, Service: "https"}, {Number: 80, Service: "http"}, {Number: 8080, Service: "http-proxy"}},
		Vulnerabilities: []models.Vulnerability{
			{Title: "Weak TLS", Severity: models.SeverityHigh, Category: "Crypto"},
			{Title: "SQL Injection", Severity: models.SeverityCritical, Category: "Injection"},
			{Title: "Missing CSP", Severity: models.SeverityMedium, Category: "Headers"},
		},
		Subdomains: []models.Subdomain{
			{Name: "www.example.com", Status: "active", Issues: []string{takeoverIssue}},
			{Name: "dev.example.com", Status: "inactive", Issues: []string{takeoverIssue}},
			{Name: "cdn.example.com", Status: "active"},
			{Name: "api.example.com", Status: "active"},
		},
	})

	dr := ComputeDiff(cur, prev)

	assert.Equal(t, "scan_2", dr.CurrentID)
	assert.Equal(t, "scan_1", dr.PreviousID)
	assert.False(t, dr.Empty())

	assert.Equal(t, []models.Port{{Number: 443, Service: "https"}, {Number: 8080, Service: "http-proxy"}}, dr.NewPorts)
	assert.Equal(t, []models.Port{{Number: 22, Service: "ssh"}}, dr.ClosedPorts)

	require.Len(t, dr.NewVulns, 2)
	assert.Equal(t, "SQL Injection", dr.NewVulns[0].Title)
	assert.Equal(t, "Missing CSP", dr.NewVulns[1].Title)
	require.Len(t, dr.ResolvedVulns, 1)
	assert.Equal(t, "Old jQuery", dr.ResolvedVulns[0].Title)

	names := func(subs []models.Subdomain) []string {
		out := []string{}
		for _, s := range subs {
			out = append(out, s.Name)
		}
		return out
	}
	assert.Equal(t, []string{"api.example.com"}, names(dr.NewSubdomains))
	assert.Equal(t, []string{"old.example.com"}, names(dr.RemovedSubdomains))
	assert.Equal(t, []string{"www.example.com"}, names(dr.NewlyTakeover))
	assert.Equal(t, []string{"dev.example.com"}, names(dr.PersistentlyTakeover))
	assert.Equal(t, []string{"cdn.example.com", "old.example.com"}, names(dr.ResolvedTakeover))

	assert.Equal(t, 4, dr.CurrentSubdomainCount)
	assert.Equal(t, 3, dr.CurrentPortCount)
	assert.Equal(t, 2, dr.PreviousPortCount)
	assert.Equal(t, 3, dr.CurrentVulnCount)
	assert.Equal(t, models.SeverityCritical, dr.CurrentRisk)
	assert.Equal(t, models.SeverityHigh, dr.PreviousRisk)
	assert.Equal(t, 100-30-15-5, dr.CurrentScore)
	assert.Equal(t, 100-15-1, dr.PreviousScore)
}

func TestComputeDiffAgainstNothing(t *testing.T) {
	cur := record("scan_1", models.Results{
		OpenPorts:  []models.Port{{Number: 80, Service: "http"}},
		Subdomains: []models.Subdomain{{Name: "www.example.com", Status: "active"}},
	})

	dr := ComputeDiff(cur, models.ScanRecord{})
	assert.Len(t, dr.NewPorts, 1)
	assert.Len(t, dr.NewSubdomains, 1)
	assert.NotNil(t, dr.ResolvedVulns)
	assert.Empty(t, dr.ClosedPorts)
	assert.Equal(t, models.SeverityLow, dr.PreviousRisk)
	assert.Equal(t, 100, dr.PreviousScore)
}

func TestComputeDiffIdentical(t *testing.T) {
	r := models.Results{
		OpenPorts:       []models.Port{{Number: 80, Service: "http"}},
		Vulnerabilities: []models.Vulnerability{{Title: "Weak TLS", Severity: models.SeverityHigh}},
	}
	dr := ComputeDiff(record("b", r), record("a", r))
	assert.True(t, dr.Empty())
}
