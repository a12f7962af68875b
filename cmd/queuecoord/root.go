package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute builds the queuecoord root command and runs it to completion.
func Execute(ctx context.Context) error {
	var configPath string

	root := &cobra.Command{
		Use:   "queuecoord",
		Short: "Location-verified queue coordinator",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional YAML config overlay")

	root.AddCommand(serveCmd(ctx, &configPath))
	root.AddCommand(migrateCmd(ctx, &configPath))
	root.AddCommand(sweepOnceCmd(ctx, &configPath))

	log.Info().Msg("queuecoord starting")
	return root.ExecuteContext(ctx)
}
