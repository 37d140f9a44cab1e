package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"exam-duel-service/internal/config"
	"exam-duel-service/internal/logger"
)

// NewSweepCmd expires stale challenges and sends reminders once, for cron use.
func NewSweepCmd(configPath *string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale duel challenges and send reminders once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(serviceName, cfg.Log.Level)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c, err := build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer c.Close()

			report, err := c.service.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d, reminded %d\n", report.Expired, report.Reminded)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "maximum run time")
	return cmd
}
