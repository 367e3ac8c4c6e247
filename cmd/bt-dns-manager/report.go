package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bt-dns-manager/pkg/logging"
	"bt-dns-manager/pkg/observer"
	"bt-dns-manager/pkg/reporter"
)

func reportCmd(configPath *string) *cobra.Command {
	var (
		serverURL  string
		interval   time.Duration
		continuous bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report this host's public IP to the server as the VPN device",
		Long: `report runs on the VPN host. It checks the server is reachable, looks up
the host's public IP, posts it to /api/report-ip and warns when it matches
the server's main IP.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("server-url") {
				cfg.Client.ServerURL = serverURL
			}
			if cmd.Flags().Changed("interval") {
				cfg.Client.CheckInterval = interval
			}
			if continuous {
				cfg.Client.RunContinuously = true
			}

			logger, err := logging.New(&cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Close() }()

			obs, err := observer.New(cfg.Observer, cfg.Schedule.RequestTimeout)
			if err != nil {
				return err
			}

			r, err := reporter.New(reporter.Config{
				ServerURL:  cfg.Client.ServerURL,
				Interval:   cfg.Client.CheckInterval,
				Continuous: cfg.Client.RunContinuously,
				Timeout:    cfg.Schedule.RequestTimeout,
			}, obs, nil, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return r.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "", "Server base URL (overrides client.server_url)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Check interval in continuous mode (overrides client.check_interval)")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "Keep reporting on the interval instead of exiting")

	return cmd
}
