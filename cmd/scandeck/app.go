package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hakim/scandeck/internal/config"
	"github.com/hakim/scandeck/internal/cve"
	"github.com/hakim/scandeck/internal/notify"
	"github.com/hakim/scandeck/internal/pipeline"
	"github.com/hakim/scandeck/internal/report"
	"github.com/hakim/scandeck/internal/service"
	"github.com/hakim/scandeck/internal/simulate"
	"github.com/hakim/scandeck/internal/storage"
)

// app bundles the service with the resources it was built from.
type app struct {
	svc   *service.Service
	cves  *cve.Database
	store *storage.Store
}

// newApp wires the service from cfg. Close must be called to stop running
// scans and release the archive.
func newApp(cfg *config.Config) (*app, error) {
	simOpts := []simulate.Option{simulate.WithDelayScale(cfg.Pipeline.DelayScale)}
	if cfg.Pipeline.Seed != 0 {
		simOpts = append(simOpts, simulate.WithSeed(cfg.Pipeline.Seed))
	}
	sim := simulate.New(simOpts...)

	svcCfg := service.Config{
		Handlers:      sim.Handlers(),
		Default:       sim.Default(),
		PhaseTimeout:  cfg.PhaseTimeout(),
		Scope:         cfg.Scope,
		Notifications: notify.NewCenter(notify.WithMax(cfg.Notifications.Max)),
		Logger:        logger,
	}

	a := &app{}
	if cfg.Archive.Enabled {
		store, err := storage.NewStore(cfg.Archive.DBPath, storage.WithKeepPerTarget(cfg.Archive.KeepPerTarget))
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.store = store
		svcCfg.Archive = store
	}

	if cfg.Notifications.WebhookURL != "" {
		svcCfg.Webhook = &pipeline.NotifyConfig{
			WebhookURL: cfg.Notifications.WebhookURL,
			Client:     &http.Client{Timeout: 10 * time.Second},
		}
	}

	if cfg.Artifacts.Enabled {
		up, err := report.NewUploader(cfg.Artifacts)
		if err != nil {
			a.closeStore()
			return nil, err
		}
		formats, err := report.ParseFormats(cfg.Artifacts.Formats)
		if err != nil {
			a.closeStore()
			return nil, err
		}
		svcCfg.Artifacts = up
		svcCfg.ArtifactFormats = formats
	}

	a.svc = service.New(svcCfg)
	a.cves = cve.New(svcCfg.Notifications, cve.WithDelayScale(cfg.Pipeline.DelayScale))
	return a, nil
}

func (a *app) Close() error {
	a.svc.Close()
	return a.closeStore()
}

func (a *app) closeStore() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// openArchive opens the bbolt archive for read-only commands.
func openArchive(cfg *config.Config) (*storage.Store, error) {
	if !cfg.Archive.Enabled {
		return nil, errors.New("the scan archive is disabled. Set archive.enabled in the config file")
	}
	store, err := storage.NewStore(cfg.Archive.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return store, nil
}
