package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"bt-dns-manager/pkg/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands.
func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "bt-dns-manager",
		Short: "Keep DNS A records on a dynamic IP and watch a VPN path for leaks",
		Long: `bt-dns-manager keeps Cloudflare A records pointed at the public IP of the
primary connection, and tracks the public IP reported by a VPN host. When
both paths share one IP the VPN has leaked and DNS updates are held back.

Quick start:
  bt-dns-manager serve --config config.yml     # run the server
  bt-dns-manager report --server-url http://host:3000 --continuous
  bt-dns-manager reconcile                      # one cycle, then exit`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "Path to configuration file")

	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(reconcileCmd(&configPath))
	cmd.AddCommand(reportCmd(&configPath))

	return cmd
}

// loadConfig reads path. When the file was not named explicitly and does not
// exist, defaults plus environment overrides are used instead.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.LoadWithEnv()
	}
	return nil, err
}
