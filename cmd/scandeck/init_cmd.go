package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hakim/scandeck/internal/config"
	"github.com/hakim/scandeck/internal/storage"
)

var (
	initForce bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize scandeck with default configuration",
	Long: `Creates a default configuration file (scandeck.yaml), the report directory,
and the scan archive database.

This is typically the first command you run when setting up scandeck.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := filepath.Join(initDir, "scandeck.yaml")

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil && !initForce {
			return fmt.Errorf("config file already exists at %s. Use --force to overwrite", configPath)
		}

		if err := storage.EnsureDir(initDir); err != nil {
			return fmt.Errorf("failed to create %s: %w", initDir, err)
		}

		// Create default config
		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		fmt.Printf("[+] Created %s with default configuration\n", configPath)

		// Load the config we just created to get paths
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		reportDir := filepath.Join(initDir, cfg.ReportDir)
		if err := storage.EnsureDir(reportDir); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
		fmt.Printf("[+] Created report directory: %s\n", reportDir)

		if cfg.Archive.Enabled {
			dbPath := filepath.Join(initDir, cfg.Archive.DBPath)
			store, err := storage.NewStore(dbPath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer store.Close()
			fmt.Printf("[+] Initialized scan archive: %s\n", dbPath)
		}

		fmt.Println()
		fmt.Println("ScanDeck initialized successfully!")
		fmt.Println("Run 'scandeck scan example.com' for a first scan or 'scandeck serve' to start the API.")

		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "output directory")
	rootCmd.AddCommand(initCmd)
}
