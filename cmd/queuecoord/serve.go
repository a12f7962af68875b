package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/waitline/queuecoord/internal/config"
)

const shutdownGrace = 15 * time.Second

// serveCmd runs the HTTP API and background sweepers until ctx is
// cancelled (SIGINT/SIGTERM), draining in-flight requests on shutdown.
func serveCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background sweepers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log.Info().Fields(cfg.Redacted()).Msg("queuecoord: configuration loaded")

			a, err := buildApp(cfg, log.Logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer a.Close()

			sweepCtx, cancelSweeps := context.WithCancel(ctx)
			defer cancelSweeps()
			go a.noShowSweeper.Start(sweepCtx)
			go a.pendingVerSweeper.Start(sweepCtx)

			serverErr := make(chan error, 1)
			go func() { serverErr <- a.httpServer.Start() }()

			select {
			case <-ctx.Done():
				log.Info().Msg("queuecoord: shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				return a.httpServer.Shutdown(shutdownCtx)
			case err := <-serverErr:
				return err
			}
		},
	}
}
