package main

import (
	"fmt"

	"github.com/dkeye/Lectern/internal/config"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every expiry sweep once and exit",
		Long:  "Ends overdue meetings, archives old ended meetings and purges recordings past retention.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			setupLogger(cfg.Mode, cfg.LogLevel)

			ctx := cmd.Context()
			a, err := newApplication(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(ctx)
			if err := a.scheduler.RunOnce(ctx); err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sweep complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default config/config.<CONFIG_ENV>.yaml)")
	return cmd
}
