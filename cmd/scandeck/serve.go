package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hakim/scandeck/internal/httpapi"
	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the scan scheduler",
	Long: `Serve the scan API on server.addr until interrupted.

  GET    /health
  GET    /v1/scans                     POST /v1/scans {"target","kind"}
  GET    /v1/scans/{id}                POST /v1/scans/{id}/pause|resume|stop
  GET    /v1/scans/{id}/events         (text/event-stream)
  GET    /v1/scans/{id}/report?format=json|html|markdown|pdf
  GET    /v1/phases[/{kind}]
  GET    /v1/notifications             POST /v1/notifications/read
  POST   /v1/notifications/{id}/read   DELETE /v1/notifications

When schedule.enabled is set, scans of schedule.targets are started every
schedule.every or on schedule.cron. On SIGINT/SIGTERM the server drains
requests, running scans are interrupted and archived as failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)

		srv := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: httpapi.NewRouter(a.svc, httpapi.Options{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Logger:         logger,
				CVEs:           a.cves,
			}),
			// Event streams end when the server starts shutting down.
			BaseContext:       func(net.Listener) context.Context { return ctx },
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		g.Go(func() error {
			fmt.Printf("[*] Listening on http://%s\n", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			fmt.Println("[*] Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout())
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			return nil
		})

		if cfg.Schedule.Enabled {
			kind, _ := models.ParseKind(cfg.Schedule.Kind)
			sched, err := schedule.New(ctx, a.svc, schedule.Config{
				Every:      cfg.Schedule.Interval(),
				Cron:       cfg.Schedule.Cron,
				Kind:       kind,
				Targets:    cfg.Schedule.Targets,
				RunOnStart: cfg.Schedule.RunOnStart,
			}, logger)
			if err != nil {
				stop()
				_ = g.Wait()
				return fmt.Errorf("schedule: %w", err)
			}
			g.Go(func() error { return sched.Run(ctx) })
			fmt.Printf("[*] Scheduled %s scans of %d target(s)\n", kind, len(cfg.Schedule.Targets))
		}

		if err := g.Wait(); err != nil {
			return err
		}
		fmt.Println("[+] Server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr from config)")
	rootCmd.AddCommand(serveCmd)
}
