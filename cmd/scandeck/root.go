package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hakim/scandeck/internal/config"
	scanlog "github.com/hakim/scandeck/internal/log"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scandeck",
	Short: "Simulated security scan orchestrator with live progress and reports",
	Long: `ScanDeck runs simulated vulnerability scans, comprehensive web application
assessments and subdomain enumerations against a named target. No traffic is
sent to the target: every phase produces randomised findings after a bounded
delay.

Scans can be driven from the command line or through the HTTP API started by
'scandeck serve', which also streams live progress, keeps a notification feed,
and runs recurring scans on a schedule. Finished scans are archived so they can
be exported as JSON, HTML, Markdown or PDF reports and compared over time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		skipConfig := map[string]bool{
			"init":    true,
			"phases":  true,
			"help":    true,
			"version": true,
		}

		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}

		if skipConfig[cmd.Name()] {
			logger = scanlog.New(scanlog.Options{Level: "info", Format: "text", Verbose: verbose})
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger = scanlog.New(scanlog.Options{
			Level:   cfg.Log.Level,
			Format:  cfg.Log.Format,
			Verbose: verbose,
		})
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: search ./scandeck.yaml, ./configs, ~/.config/scandeck)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")

	// Version flag
	rootCmd.Version = "0.1.0-dev"
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
