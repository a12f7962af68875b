package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/waitline/queuecoord/internal/config"
	"github.com/waitline/queuecoord/internal/persistence/postgres"
)

// migrateCmd applies the embedded schema to the configured Postgres
// database. Idempotent: safe to run on every deploy.
func migrateCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the persistence schema to Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			db, err := postgres.Open(cfg.PostgresDSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			log.Info().Msg("queuecoord: schema migration complete")
			return nil
		},
	}
}
