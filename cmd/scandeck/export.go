package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hakim/scandeck/internal/report"
	"github.com/hakim/scandeck/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export <scan-id>",
	Short: "Export the report of an archived scan",
	Long: `Render the report of an archived scan as JSON, HTML, Markdown or PDF.

The report is written to {report_dir}/{kind}-report-{date}.{ext} unless --out
is given; "--out -" prints it to stdout. With --upload the report is also
stored in the configured MinIO bucket.

Examples:
  scandeck export scan_1b2c3d4e-... --format html
  scandeck export scan_1b2c3d4e-... --format md --out -
  scandeck export scan_1b2c3d4e-... --format pdf --upload`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		formatFlag, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		upload, _ := cmd.Flags().GetBool("upload")

		f, err := report.ParseFormat(formatFlag)
		if err != nil {
			return err
		}

		store, err := openArchive(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.GetScan(id)
		if err != nil {
			return fmt.Errorf("reading scan %s: %w", id, err)
		}
		if rec == nil {
			return fmt.Errorf("scan %s not found in the archive. Run 'scandeck history' to list scans", id)
		}

		doc := report.Build(*rec)
		data, _, err := report.Export(doc, f)
		if err != nil {
			return err
		}

		if outPath == "-" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if outPath == "" {
			outPath = filepath.Join(cfg.ReportDir, report.Filename(doc, f))
		}
		if err := storage.EnsureDir(filepath.Dir(outPath)); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(outPath), err)
		}
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("[+] %s report written to %s\n", f, outPath)

		if upload {
			up, err := report.NewUploader(cfg.Artifacts)
			if err != nil {
				return err
			}
			url, err := up.Upload(cmd.Context(), doc, f)
			if err != nil {
				return fmt.Errorf("uploading report: %w", err)
			}
			fmt.Printf("[+] Uploaded to %s\n", url)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "markdown", "Report format: json, html, markdown, pdf")
	exportCmd.Flags().StringP("out", "o", "", "Output file, or - for stdout (default: report_dir)")
	exportCmd.Flags().Bool("upload", false, "Also upload the report to the configured artifact bucket")
	rootCmd.AddCommand(exportCmd)
}
