package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hakim/scandeck/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived scans",
	Long: `Display a formatted table of archived scans.

Scans are listed newest-first. Each row shows the scan ID, kind, target, start
time, final status and the risk level with its score. With --domain only the
scans of that target are shown; without it every archived scan is listed.

Use --limit to cap the number of rows shown (default: 10).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, _ := cmd.Flags().GetString("domain")
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openArchive(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		var scans []models.ScanRecord
		if domain != "" {
			scans, err = store.ListScans(domain)
		} else {
			scans, err = store.ListAll(0)
		}
		if err != nil {
			return fmt.Errorf("listing scans: %w", err)
		}

		if len(scans) == 0 {
			if domain != "" {
				fmt.Printf("No scan history found for %s\n", domain)
			} else {
				fmt.Println("No scan history found")
			}
			return nil
		}

		total := len(scans)
		if limit > 0 && len(scans) > limit {
			scans = scans[:limit]
		}

		const separator = "────────────────────────────────────────────────────────────────────────────────────────"

		if domain != "" {
			fmt.Printf("\nScan History for %s\n", domain)
		} else {
			fmt.Printf("\nScan History\n")
		}
		fmt.Println(separator)
		fmt.Printf("  %-3s  %-16s  %-13s  %-24s  %-16s  %-10s  %s\n", "#", "Scan ID", "Kind", "Target", "Started", "Status", "Risk")
		fmt.Println(separator)

		for i, scan := range scans {
			fmt.Printf("  %-3d  %-16s  %-13s  %-24s  %-16s  %-10s  %s\n",
				i+1,
				shortScanID(scan.ID),
				scan.Kind,
				truncate(scan.Target, 24),
				scan.StartTime.UTC().Format("2006-01-02 15:04"),
				scan.Status,
				formatRisk(scan),
			)
		}

		fmt.Println(separator)
		if total > len(scans) {
			fmt.Printf("Showing %d of %d scan(s)\n\n", len(scans), total)
		} else {
			fmt.Printf("Total: %d scan(s)\n\n", total)
		}

		return nil
	},
}

// shortScanID keeps the kind prefix and the first 8 characters of the uuid.
func shortScanID(id string) string {
	i := strings.LastIndexByte(id, '_')
	if len(id) <= i+9 {
		return id
	}
	return id[:i+9] + "..."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatRisk shows "-" for scans that never completed.
func formatRisk(scan models.ScanRecord) string {
	if scan.Status != models.StatusCompleted {
		return "-"
	}
	return fmt.Sprintf("%s (%d)", scan.Statistics.RiskLevel, scan.Statistics.Score)
}

func init() {
	historyCmd.Flags().StringP("domain", "d", "", "Only show scans of this target")
	historyCmd.Flags().Int("limit", 10, "Maximum number of scans to display")
	rootCmd.AddCommand(historyCmd)
}
