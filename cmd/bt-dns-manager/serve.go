package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bt-dns-manager/pkg/api"
	"bt-dns-manager/pkg/config"
	"bt-dns-manager/pkg/ratelimit"
	"bt-dns-manager/pkg/scheduler"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the report API and the DNS reconciliation schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, *configPath)
		},
	}
}

func runServe(cmd *cobra.Command, configPath string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(shutdownCtx)
	}()

	var watcher *config.Watcher
	targets := func() []string { return slices.Clone(cfg.Records) }
	if cfg.WatchConfig {
		if watcher, err = config.NewWatcher(configPath, a.logger.WithComponent("config").Logger); err != nil {
			return err
		}
		defer func() { _ = watcher.Close() }()
		targets = watcher.Records
	}

	a.logger.Info("bt-dns-manager starting",
		"version", version,
		"build_time", buildTime,
		"records", len(cfg.Records),
		"storage", cfg.Storage.Backend,
		"observer", cfg.Observer.Mode,
	)

	// Seed the live primary slot before the first status request arrives.
	if ip, err := a.engine.ObservePrimary(ctx); err != nil {
		a.logger.Warn("Initial primary ip lookup failed", "error", err)
	} else {
		a.logger.Info("Primary ip observed", "ip", ip)
	}

	limiter := ratelimit.NewManager(&cfg.RateLimit, a.logger)
	defer limiter.Stop()

	sched := scheduler.New(scheduler.Config{
		ReconcileInterval:   cfg.Schedule.ReconcileInterval,
		PrimaryPollInterval: cfg.Schedule.PrimaryPollInterval,
	}, a.engine, targets, a.logger)

	server, err := api.New(&api.Config{
		ListenAddress:  cfg.Server.ListenAddress,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		Registry:       a.registry,
		Metrics:        a.metrics,
		RateLimiter:    limiter,
		TrustedProxies: cfg.RateLimit.TrustedProxyCIDRs,
		LastResult:     sched.LastResult,
		Logger:         a.logger.WithComponent("api").Logger,
		Version:        version,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })

	if watcher != nil {
		watcher.OnChange(func(next *config.Config) {
			a.logger.Info("Record list reloaded", "records", next.Records)
			if err := server.SetTrustedProxies(next.RateLimit.TrustedProxyCIDRs); err != nil {
				a.logger.Warn("Ignoring reloaded trusted proxies", "error", err)
			}
		})
		g.Go(func() error { return watcher.Start(gctx) })
	}

	if err := sched.Start(gctx); err != nil {
		return err
	}
	defer sched.Stop()

	err = g.Wait()
	a.logger.Info("bt-dns-manager stopped")
	return err
}
