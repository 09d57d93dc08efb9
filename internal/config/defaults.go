package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hakim/scandeck/internal/notify"
	"github.com/hakim/scandeck/internal/pipeline"
	"github.com/hakim/scandeck/internal/report"
)

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		ReportDir: "reports",
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			AllowedOrigins:  []string{"http://localhost:3000"},
			ShutdownTimeout: "10s",
		},
		Pipeline: PipelineConfig{
			DelayScale:   1,
			PhaseTimeout: "2m",
		},
		Notifications: NotificationsConfig{
			Max: notify.DefaultMax,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			DBPath:  "scandeck.db",
		},
		Scope: pipeline.ScopeConfig{
			AllowedDomains: []string{},
			AllowedCIDRs:   []string{},
		},
		Schedule: ScheduleConfig{
			Every:   "24h",
			Kind:    "basic",
			Targets: []string{},
		},
		Artifacts: report.ArtifactConfig{
			Endpoint: "localhost:9000",
			Bucket:   "scandeck-reports",
			Prefix:   "reports",
			Formats:  []string{"json", "markdown"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefault writes a default configuration to the specified path
func WriteDefault(path string) error {
	cfg := DefaultConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
