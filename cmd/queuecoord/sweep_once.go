package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/waitline/queuecoord/internal/config"
)

// sweepOnceCmd runs both background sweepers a single time and exits,
// for operator-triggered catch-up runs or cron-based deployments that
// don't want a long-lived serve process driving the sweepers.
func sweepOnceCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-once",
		Short: "Run the no-show and pending-verification sweepers once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			a, err := buildApp(cfg, log.Logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer a.Close()

			a.noShowSweeper.RunOnce(ctx)
			a.pendingVerSweeper.RunOnce(ctx)
			log.Info().Msg("queuecoord: sweep-once complete")
			return nil
		},
	}
}
