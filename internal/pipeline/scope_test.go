package pipeline_test

import (
	"testing"

	"github.com/hakim/scandeck/internal/pipeline"
	"github.com/stretchr/testify/require"
)

func TestScopeCheck(t *testing.T) {
	t.Parallel()
	scope := pipeline.ScopeConfig{
		AllowedDomains: []string{"example.com", "*.example.com"},
		AllowedCIDRs:   []string{"10.0.0.0/8"},
	}

	var testCases = []struct {
		scenario string
		given    string
		allowed  bool
	}{
		{"exact domain", "example.com", true},
		{"single label wildcard", "api.example.com", true},
		{"case insensitive", "API.Example.COM", true},
		{"url is reduced to host", "https://www.example.com/login?next=/", true},
		{"host with port", "www.example.com:8443", true},
		{"nested label", "a.b.example.com", false},
		{"other domain", "example.org", false},
		{"ip inside cidr", "10.1.2.3", true},
		{"ip outside cidr", "192.168.1.1", false},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			err := scope.Check(tt.given)
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, pipeline.ErrOutOfScope)
		})
	}
}

func TestEmptyScopeAllowsEverything(t *testing.T) {
	t.Parallel()
	var scope pipeline.ScopeConfig
	require.NoError(t, scope.Check("anything.test"))
	require.NoError(t, scope.Check("8.8.8.8"))
	require.ErrorIs(t, scope.Check("  "), pipeline.ErrInvalidTarget)
	require.ErrorIs(t, scope.Check("https:///path"), pipeline.ErrInvalidTarget)
}

func TestCleanTarget(t *testing.T) {
	t.Parallel()
	require.Equal(t, "example.com", pipeline.CleanTarget("https://example.com/path"))
	require.Equal(t, "example.com", pipeline.CleanTarget("HTTP://example.com"))
	require.Equal(t, "example.com:8080", pipeline.CleanTarget("example.com:8080/x"))
	require.Equal(t, "example.com", pipeline.CleanTarget(" example.com "))
}

func TestTemplates(t *testing.T) {
	t.Parallel()
	all := pipeline.Templates()
	require.Len(t, all, 3)
	require.Len(t, all[0].Phases, 5)
	require.Len(t, all[1].Phases, 20)
	require.Len(t, all[2].Phases, 9)

	tmpl, err := pipeline.GetTemplate("nope")
	require.ErrorIs(t, err, pipeline.ErrUnknownKind)
	require.Empty(t, tmpl.Phases)

	basic, err := pipeline.GetTemplate("basic")
	require.NoError(t, err)
	basic.Phases[0].Name = "mutated"
	again, _ := pipeline.GetTemplate("basic")
	require.Equal(t, "port_scan", again.Phases[0].Name)
}
