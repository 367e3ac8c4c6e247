package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"bt-dns-manager/pkg/config"
	"bt-dns-manager/pkg/device"
	"bt-dns-manager/pkg/logging"
	"bt-dns-manager/pkg/notify"
	"bt-dns-manager/pkg/observer"
	"bt-dns-manager/pkg/reconcile"
	"bt-dns-manager/pkg/storage"
	"bt-dns-manager/pkg/telemetry"
	"bt-dns-manager/pkg/zones"
)

// app holds the components shared by serve and reconcile.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	telem    *telemetry.Telemetry
	metrics  *telemetry.Metrics
	registry *device.Registry
	engine   *reconcile.Engine
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	logging.SetGlobal(logger)

	a := &app{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	telem, err := telemetry.New(ctx, &cfg.Telemetry, a.logger)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	a.telem = telem

	if a.metrics, err = telem.InitMetrics(); err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	store, err := storage.New(&storage.Config{
		Backend:     storage.BackendType(cfg.Storage.Backend),
		PrimaryFile: cfg.Storage.PrimaryFile,
		VPNFile:     cfg.Storage.VPNFile,
		SQLitePath:  cfg.Storage.SQLitePath,
	}, a.metrics)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	a.registry = device.NewRegistry(store, a.logger)
	if err := a.registry.LoadAtStartup(ctx); err != nil {
		// Corrupt state only costs one redundant update.
		a.logger.Warn("Failed to load persisted ips", "error", err)
	}

	obs, err := observer.New(cfg.Observer, cfg.Schedule.RequestTimeout)
	if err != nil {
		return fmt.Errorf("create ip observer: %w", err)
	}

	client := &http.Client{Timeout: cfg.Schedule.RequestTimeout}

	opts := []zones.CloudflareOption{zones.WithHTTPClient(client)}
	if cfg.Cloudflare.BaseURL != "" {
		opts = append(opts, zones.WithBaseURL(cfg.Cloudflare.BaseURL))
	}
	directory, err := zones.NewCloudflare(cfg.Cloudflare.APIToken, opts...)
	if err != nil {
		return fmt.Errorf("create cloudflare client: %w", err)
	}

	a.engine = reconcile.New(reconcile.Config{
		RequestTimeout: cfg.Schedule.RequestTimeout,
		TTL:            cfg.Cloudflare.TTL,
	}, reconcile.Deps{
		Observer: obs,
		Registry: a.registry,
		Zones:    directory,
		Notifier: notify.New(cfg.Notify.DiscordWebhookURL, client),
		Logger:   a.logger,
		Metrics:  a.metrics,
		Tracer:   telem.Tracer(),
	})
	return nil
}

// close releases everything init acquired. Safe on a partially built app.
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
	}
	if a.telem != nil {
		errs = append(errs, a.telem.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("Error during shutdown", "error", err)
	}
	_ = a.logger.Close()
}
