package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hakim/scandeck/internal/diff"
	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/report"
	"github.com/hakim/scandeck/internal/storage"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare two archived scans and report what changed",
	Long: `Compare the current scan of a target against a previous one.

The delta covers subdomains, open ports, vulnerabilities, takeover candidates
and the risk score. Without --scan the latest archived scan of the target is
used; without --compare the scan immediately before it.

The markdown change report is printed to stdout unless --out is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, _ := cmd.Flags().GetString("domain")
		scanID, _ := cmd.Flags().GetString("scan")
		compareID, _ := cmd.Flags().GetString("compare")
		outPath, _ := cmd.Flags().GetString("out")

		store, err := openArchive(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		scans, err := store.ListScans(domain)
		if err != nil {
			return fmt.Errorf("listing scans for %s: %w", domain, err)
		}
		if len(scans) == 0 {
			return fmt.Errorf("no archived scans for %s. Run 'scandeck scan %s' first", domain, domain)
		}

		current, err := pickScan(store, scans, scanID, "")
		if err != nil {
			return err
		}
		previous, err := pickScan(store, scans, compareID, current.ID)
		if err != nil {
			return err
		}
		if previous == nil {
			fmt.Fprintln(os.Stderr, "[!] No previous scan found for comparison")
			return nil
		}

		fmt.Fprintf(os.Stderr, "[*] Current:  %s (%d subdomains, %d ports, %d vulns)\n",
			current.ID, len(current.Results.Subdomains), len(current.Results.OpenPorts), len(current.Results.Vulnerabilities))
		fmt.Fprintf(os.Stderr, "[*] Previous: %s (%d subdomains, %d ports, %d vulns)\n",
			previous.ID, len(previous.Results.Subdomains), len(previous.Results.OpenPorts), len(previous.Results.Vulnerabilities))

		result := diff.ComputeDiff(*current, *previous)
		md := report.DiffMarkdown(domain, result)

		if outPath == "" {
			_, err := os.Stdout.Write(md)
			return err
		}
		if err := os.WriteFile(outPath, md, 0644); err != nil {
			return fmt.Errorf("writing diff report: %w", err)
		}

		fmt.Printf("[+] Diff report written to %s\n", outPath)
		fmt.Printf("    Subdomains: +%d new, -%d removed\n", len(result.NewSubdomains), len(result.RemovedSubdomains))
		fmt.Printf("    Ports:      +%d new, -%d closed\n", len(result.NewPorts), len(result.ClosedPorts))
		fmt.Printf("    Vulns:      +%d new, -%d resolved\n", len(result.NewVulns), len(result.ResolvedVulns))
		if len(result.NewlyTakeover) > 0 {
			fmt.Printf("    Takeover:   %d newly vulnerable subdomain(s)!\n", len(result.NewlyTakeover))
		}
		return nil
	},
}

// pickScan returns the scan with the given id. When id is empty it returns
// the newest scan, or with after set the scan just older than after. It
// returns nil when there is none.
func pickScan(store *storage.Store, scans []models.ScanRecord, id, after string) (*models.ScanRecord, error) {
	if id != "" {
		rec, err := store.GetScan(id)
		if err != nil {
			return nil, fmt.Errorf("reading scan %s: %w", id, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("scan %s not found in the archive", id)
		}
		return rec, nil
	}

	if after == "" {
		return &scans[0], nil
	}
	// scans is sorted newest-first.
	for i := range scans {
		if scans[i].ID == after && i+1 < len(scans) {
			return &scans[i+1], nil
		}
	}
	return nil, nil
}

func init() {
	diffCmd.Flags().StringP("domain", "d", "", "Target domain (required)")
	diffCmd.Flags().String("scan", "", "Current scan ID (default: latest)")
	diffCmd.Flags().String("compare", "", "Previous scan ID to compare against (default: the one before --scan)")
	diffCmd.Flags().StringP("out", "o", "", "Write the markdown report to this file instead of stdout")
	diffCmd.MarkFlagRequired("domain")
	rootCmd.AddCommand(diffCmd)
}
