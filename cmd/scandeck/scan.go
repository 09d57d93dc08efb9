package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/pipeline"
	"github.com/hakim/scandeck/internal/report"
	"github.com/hakim/scandeck/internal/storage"
)

var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Run a simulated scan and write its reports",
	Long: `Run one scan against a target and wait for it to finish.

Every phase is printed as it starts and completes. On a terminal a live
progress bar is shown as well. Press Ctrl-C once to stop the scan; the
phase in flight finishes and the scan ends as failed ("stopped by user").

Reports are written to:
  {report_dir}/{target}_{YYYYMMDD}_{HHMMSS}.{ext}

The finished scan is archived so history, diff and export work across runs.

Examples:
  scandeck scan example.com
  scandeck scan example.com --kind comprehensive --format html,pdf
  scandeck scan https://shop.example.com --kind subdomain --delay-scale 0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// ── 1. Read all flags ──────────────────────────────────────────────────
		target := args[0]
		kindFlag, _ := cmd.Flags().GetString("kind")
		formatFlag, _ := cmd.Flags().GetString("format")
		outDir, _ := cmd.Flags().GetString("out")
		scopeDomainsFlag, _ := cmd.Flags().GetString("scope-domains")
		webhookURL, _ := cmd.Flags().GetString("notify-webhook")

		kind, ok := models.ParseKind(kindFlag)
		if !ok {
			return fmt.Errorf("%w %q", pipeline.ErrUnknownKind, kindFlag)
		}
		formats, err := report.ParseFormats(splitCSV(formatFlag))
		if err != nil {
			return err
		}

		// ── 2. Flags override config ───────────────────────────────────────────
		if cmd.Flags().Changed("delay-scale") {
			cfg.Pipeline.DelayScale, _ = cmd.Flags().GetFloat64("delay-scale")
		}
		if scopeDomainsFlag != "" {
			cfg.Scope.AllowedDomains = splitCSV(scopeDomainsFlag)
		}
		if webhookURL != "" {
			cfg.Notifications.WebhookURL = webhookURL
		}
		if outDir == "" {
			outDir = cfg.ReportDir
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		// ── 3. Progress output ─────────────────────────────────────────────────
		prog := newProgress(os.Stdout)
		defer a.svc.OnPhaseUpdate(prog.phase)()

		done := make(chan models.ScanRecord, 1)
		finish := func(rec models.ScanRecord) {
			select {
			case done <- rec:
			default:
			}
		}
		changed := make(chan struct{}, 1)
		var scanID atomic.Value
		defer a.svc.OnScanUpdate(func(rec models.ScanRecord) {
			if id, _ := scanID.Load().(string); rec.ID != id {
				return
			}
			select {
			case changed <- struct{}{}:
			default:
			}
			prog.record(rec)
			if rec.Status.Terminal() {
				finish(rec)
			}
		})()

		// ── 4. Start the scan ──────────────────────────────────────────────────
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		id, err := a.svc.Start(ctx, kind, target)
		if err != nil {
			return err
		}
		scanID.Store(id)
		fmt.Printf("[*] Starting %s scan of %s (%s)\n", kind, target, id)

		// The record may have finished before the subscriber saw the id.
		if rec, ok := a.svc.GetScan(id); ok && rec.Status.Terminal() {
			finish(rec)
		}

		var rec models.ScanRecord
		select {
		case rec = <-done:
		case <-ctx.Done():
			prog.clear()
			fmt.Println("[!] Interrupted, stopping scan after the current phase...")
			rec = stopAndWait(a.svc, id, changed, done)
		}
		prog.clear()

		// ── 5. Write reports ───────────────────────────────────────────────────
		doc := report.Build(rec)
		var written []string
		for _, f := range formats {
			data, _, err := report.Export(doc, f)
			if err != nil {
				fmt.Printf("[!] Warning: %s report failed: %v\n", f, err)
				continue
			}
			path, err := storage.WriteReport(outDir, rec.Target, rec.StartTime, f.Ext(), data)
			if err != nil {
				fmt.Printf("[!] Warning: %v\n", err)
				continue
			}
			written = append(written, path)
		}

		// ── 6. Print final summary ─────────────────────────────────────────────
		fmt.Println()
		if rec.Status == models.StatusCompleted {
			fmt.Printf("[+] Scan complete!\n")
		} else {
			fmt.Printf("[!] Scan %s: %s\n", rec.Status, rec.Error)
		}
		fmt.Printf("    Target:    %s\n", rec.Target)
		fmt.Printf("    Scan ID:   %s\n", rec.ID)
		fmt.Printf("    Status:    %s\n", rec.Status)
		fmt.Printf("    Elapsed:   %s\n", rec.Duration().Round(time.Millisecond))
		fmt.Printf("    Risk:      %s (score %d/100)\n", doc.Executive.RiskLevel, doc.Executive.Score)
		fmt.Printf("    Findings:  %d vulnerabilities, %d open ports, %d subdomains\n",
			len(rec.Results.Vulnerabilities), len(rec.Results.OpenPorts), len(rec.Results.Subdomains))
		for _, p := range written {
			fmt.Printf("    Report:    %s\n", p)
		}

		if rec.Status != models.StatusCompleted {
			return fmt.Errorf("scan %s did not complete", rec.ID)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringP("kind", "k", "basic", "Scan kind: basic, comprehensive, subdomain")
	scanCmd.Flags().StringP("format", "f", "markdown", "Comma-separated report formats: json, html, markdown, pdf")
	scanCmd.Flags().StringP("out", "o", "", "Report directory (default: report_dir from config)")
	scanCmd.Flags().Float64("delay-scale", 1, "Multiplier for simulated phase delays; 0 runs instantly")
	scanCmd.Flags().String("scope-domains", "", "Comma-separated allowed domain patterns (e.g. example.com,*.example.com)")
	scanCmd.Flags().String("notify-webhook", "", "HTTP webhook URL to POST a completion summary to")

	rootCmd.AddCommand(scanCmd)
}

type stopper interface {
	StopScan(id string) bool
}

// stopAndWait stops id and returns its terminal record. A scan that is still
// pending cannot be stopped yet, so the stop is retried on every update
// until it takes or the scan finishes on its own.
func stopAndWait(svc stopper, id string, changed <-chan struct{}, done <-chan models.ScanRecord) models.ScanRecord {
	for !svc.StopScan(id) {
		select {
		case rec := <-done:
			return rec
		case <-changed:
		}
	}
	return <-done
}

// splitCSV splits a comma-separated string into a trimmed, non-empty slice.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// progress prints phase lines and, on a terminal, a live progress bar that
// is redrawn in place below them.
type progress struct {
	mx    sync.Mutex
	out   *os.File
	tty   bool
	width int
	shown bool
}

func newProgress(out *os.File) *progress {
	p := &progress{out: out, width: 30}
	fd := int(out.Fd())
	if term.IsTerminal(fd) {
		p.tty = true
		if w, _, err := term.GetSize(fd); err == nil && w > 60 {
			p.width = min(50, w-40)
		}
	}
	return p
}

func (p *progress) phase(ev pipeline.PhaseEvent) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.clearLocked()

	switch ev.Phase.Status {
	case models.PhaseRunning:
		fmt.Fprintf(p.out, "[*] Phase %d: %s...\n", ev.Index+1, ev.Phase.Name)
	case models.PhaseCompleted:
		fmt.Fprintf(p.out, "[+] Phase %d: %s complete (%s, %d findings)\n",
			ev.Index+1, ev.Phase.Name, ev.Phase.Duration.Round(time.Millisecond), ev.Phase.Findings)
	case models.PhaseFailed:
		fmt.Fprintf(p.out, "[!] Phase %d: %s FAILED: %s\n", ev.Index+1, ev.Phase.Name, ev.Phase.Error)
	}
}

func (p *progress) record(rec models.ScanRecord) {
	if !p.tty || rec.Status.Terminal() {
		return
	}
	p.mx.Lock()
	defer p.mx.Unlock()

	filled := rec.Progress * p.width / 100
	bar := strings.Repeat("#", filled) + strings.Repeat("-", p.width-filled)
	fmt.Fprintf(p.out, "\r\033[K[%s] %3d%% %s", bar, rec.Progress, rec.CurrentPhase)
	p.shown = true
}

func (p *progress) clear() {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.clearLocked()
}

func (p *progress) clearLocked() {
	if p.shown {
		fmt.Fprint(p.out, "\r\033[K")
		p.shown = false
	}
}
