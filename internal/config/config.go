package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/pipeline"
	"github.com/hakim/scandeck/internal/report"
)

// EnvPrefix is prepended to every environment override, e.g.
// SCANDECK_PIPELINE_DELAY_SCALE.
const EnvPrefix = "SCANDECK"

// Config represents the application configuration
type Config struct {
	ReportDir     string                `mapstructure:"report_dir" yaml:"report_dir"`
	Server        ServerConfig          `mapstructure:"server" yaml:"server"`
	Pipeline      PipelineConfig        `mapstructure:"pipeline" yaml:"pipeline"`
	Notifications NotificationsConfig   `mapstructure:"notifications" yaml:"notifications"`
	Archive       ArchiveConfig         `mapstructure:"archive" yaml:"archive"`
	Scope         pipeline.ScopeConfig  `mapstructure:"scope" yaml:"scope"`
	Schedule      ScheduleConfig        `mapstructure:"schedule" yaml:"schedule"`
	Artifacts     report.ArtifactConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Log           LogConfig             `mapstructure:"log" yaml:"log"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr            string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout string   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PipelineConfig tunes the simulated phases
type PipelineConfig struct {
	// DelayScale multiplies every simulated delay; 0 runs phases instantly.
	DelayScale float64 `mapstructure:"delay_scale" yaml:"delay_scale"`
	// PhaseTimeout caps a single phase, e.g. "2m". Empty or "0" means none.
	PhaseTimeout string `mapstructure:"phase_timeout" yaml:"phase_timeout"`
	// Seed fixes the random source. 0 seeds from the clock.
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// NotificationsConfig controls the in-process center and the completion webhook
type NotificationsConfig struct {
	Max        int    `mapstructure:"max" yaml:"max"`
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

// ArchiveConfig controls the bbolt history of finished scans
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DBPath  string `mapstructure:"db_path" yaml:"db_path"`

	// KeepPerTarget caps archived scans per target; 0 keeps all.
	KeepPerTarget int `mapstructure:"keep_per_target" yaml:"keep_per_target"`
}

// ScheduleConfig describes recurring scans started by `serve`
type ScheduleConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Every   string   `mapstructure:"every" yaml:"every"`
	Cron    string   `mapstructure:"cron" yaml:"cron"`
	Kind    string   `mapstructure:"kind" yaml:"kind"`
	Targets []string `mapstructure:"targets" yaml:"targets"`
	// RunOnStart fires the first round as soon as serve starts.
	RunOnStart bool `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// LogConfig selects the log level and handler
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration from a YAML file layered over the defaults, then
// applies SCANDECK_* environment overrides.
// If path is empty, searches for scandeck.yaml in the current directory,
// ./configs and ~/.config/scandeck/; a missing file is not an error then.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		// Use explicit path
		v.SetConfigFile(path)
	} else {
		// Search for config in default locations
		v.SetConfigName("scandeck")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "scandeck"))
		}
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.ReportDir == "" {
		errs = append(errs, errors.New("report_dir cannot be empty"))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr cannot be empty"))
	}
	if _, err := parseDuration(c.Server.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout: %w", err))
	}

	if c.Pipeline.DelayScale < 0 {
		errs = append(errs, errors.New("pipeline.delay_scale cannot be negative"))
	}
	if _, err := parseDuration(c.Pipeline.PhaseTimeout); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.phase_timeout: %w", err))
	}

	if c.Notifications.Max <= 0 {
		errs = append(errs, errors.New("notifications.max must be positive"))
	}

	if c.Archive.KeepPerTarget < 0 {
		errs = append(errs, errors.New("archive.keep_per_target cannot be negative"))
	}
	if c.Archive.Enabled && c.Archive.DBPath == "" {
		errs = append(errs, errors.New("archive.db_path cannot be empty when the archive is enabled"))
	}

	for _, cidr := range c.Scope.AllowedCIDRs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			errs = append(errs, fmt.Errorf("scope.allowed_cidrs: %w", err))
		}
	}

	if c.Schedule.Enabled {
		errs = append(errs, c.Schedule.validate()...)
	}

	if c.Artifacts.Enabled && (c.Artifacts.Endpoint == "" || c.Artifacts.Bucket == "") {
		errs = append(errs, errors.New("artifacts.endpoint and artifacts.bucket are required when artifacts are enabled"))
	}
	if _, err := report.ParseFormats(c.Artifacts.Formats); err != nil {
		errs = append(errs, fmt.Errorf("artifacts.formats: %w", err))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func (s ScheduleConfig) validate() []error {
	var errs []error
	switch {
	case s.Every == "" && s.Cron == "":
		errs = append(errs, errors.New("schedule needs one of every or cron"))
	case s.Every != "" && s.Cron != "":
		errs = append(errs, errors.New("schedule.every and schedule.cron are mutually exclusive"))
	case s.Every != "":
		if d, err := parseDuration(s.Every); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("schedule.every %q must be a positive duration", s.Every))
		}
	}
	if _, ok := models.ParseKind(s.Kind); !ok {
		errs = append(errs, fmt.Errorf("schedule.kind %q is not one of basic, comprehensive, subdomain", s.Kind))
	}
	if len(s.Targets) == 0 {
		errs = append(errs, errors.New("schedule.targets cannot be empty"))
	}
	return errs
}

// PhaseTimeout is the parsed pipeline.phase_timeout; zero means none.
func (c *Config) PhaseTimeout() time.Duration {
	d, _ := parseDuration(c.Pipeline.PhaseTimeout)
	return d
}

// ShutdownTimeout is the parsed server.shutdown_timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

// Interval is the parsed schedule.every.
func (s ScheduleConfig) Interval() time.Duration {
	d, _ := parseDuration(s.Every)
	return d
}

// parseDuration accepts "" and "0" as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q cannot be negative", s)
	}
	return d, nil
}
