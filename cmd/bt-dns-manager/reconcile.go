package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func reconcileCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single reconciliation cycle and print the outcome",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				a.close(ctx)
			}()

			res, err := a.engine.Reconcile(cmd.Context(), cfg.Records)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "result: %s\nip: %s\nvpn: %s\n", res.Summary(), res.PrimaryIP, res.VPNStatus)
			for _, o := range res.Outcomes {
				if o.Err != nil {
					fmt.Fprintf(out, "  %-40s %s (%v)\n", o.Record, o.Status, o.Err)
					continue
				}
				fmt.Fprintf(out, "  %-40s %s\n", o.Record, o.Status)
			}
			if len(res.Failed()) > 0 {
				return fmt.Errorf("%d record(s) failed", len(res.Failed()))
			}
			return nil
		},
	}
}
