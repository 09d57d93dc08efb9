package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hakim/scandeck/internal/cve"
	"github.com/hakim/scandeck/internal/models"
)

var cveCmd = &cobra.Command{
	Use:   "cve [cve-id]",
	Short: "Look up, search or list recent CVEs",
	Long: `Query the built-in CVE advisory pool.

With an id the advisory is printed in full. --search lists advisories whose
description or CPE contains the query; --recent lists those published in the
last N days.

Examples:
  scandeck cve CVE-2024-50625
  scandeck cve --search injection --limit 5
  scandeck cve --recent 30`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		days, _ := cmd.Flags().GetInt("recent")

		modes := 0
		for _, set := range []bool{len(args) == 1, cmd.Flags().Changed("search"), cmd.Flags().Changed("recent")} {
			if set {
				modes++
			}
		}
		if modes != 1 {
			return errors.New("give exactly one of a CVE id, --search or --recent")
		}

		db := cve.New(nil, cve.WithDelayScale(cfg.Pipeline.DelayScale))
		ctx := cmd.Context()

		switch {
		case len(args) == 1:
			rec, err := db.Lookup(ctx, args[0])
			if err != nil {
				return err
			}
			printCVE(rec)
			return nil
		case cmd.Flags().Changed("search"):
			recs, err := db.Search(ctx, query, limit)
			if err != nil {
				return err
			}
			fmt.Printf("[*] %d CVEs matching %q\n\n", len(recs), query)
			printCVEList(recs)
			return nil
		default:
			recs, err := db.Recent(ctx, days)
			if err != nil {
				return err
			}
			fmt.Printf("[*] %d CVEs published in the last %d days\n\n", len(recs), days)
			printCVEList(recs)
			return nil
		}
	},
}

func init() {
	cveCmd.Flags().StringP("search", "s", "", "Keyword or CPE fragment to search for")
	cveCmd.Flags().IntP("limit", "l", cve.DefaultSearchLimit, "Maximum number of search results")
	cveCmd.Flags().Int("recent", cve.DefaultRecentDays, "List CVEs published in the last N days")

	rootCmd.AddCommand(cveCmd)
}

func printCVE(rec cve.Record) {
	fmt.Printf("%s  %s (CVSS %.1f)\n", rec.ID, formatSeverity(rec.Severity), rec.CVSS)
	fmt.Printf("    Vector:     %s\n", rec.Vector)
	fmt.Printf("    Published:  %s\n", rec.Published.Format("2006-01-02"))
	fmt.Printf("    Weaknesses: %s\n", strings.Join(rec.Weaknesses, ", "))
	fmt.Printf("    CPE:        %s\n", strings.Join(rec.CPE, ", "))
	fmt.Printf("\n    %s\n", rec.Description)
	for _, ref := range rec.References {
		fmt.Printf("    - %s\n", ref)
	}
}

func printCVEList(recs []cve.Record) {
	if len(recs) == 0 {
		fmt.Println("    None found.")
		return
	}
	fmt.Printf("%-16s %-9s %-5s %-10s %s\n", "ID", "SEVERITY", "CVSS", "PUBLISHED", "DESCRIPTION")
	for _, r := range recs {
		fmt.Printf("%-16s %-9s %-5.1f %-10s %s\n",
			r.ID, formatSeverity(r.Severity), r.CVSS, r.Published.Format("2006-01-02"), truncate(r.Description, 60))
	}
}

func formatSeverity(s models.Severity) string {
	return strings.ToUpper(string(s))
}
