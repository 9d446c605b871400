package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nmslite/inventory-agent/internal/api"
	"github.com/nmslite/inventory-agent/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the task API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(false)
			if err != nil {
				return err
			}
			d, err := newDispatcher(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("Starting inventory agent",
				"address", cfg.Server.Address(),
				"units", d.Units(),
			)
			srv := server.NewServer(server.Config{
				Address:      cfg.Server.Address(),
				ReadTimeout:  cfg.Server.ReadTimeout(),
				WriteTimeout: cfg.Server.WriteTimeout(),
			}, api.NewRouter(d, cfg.Server.MaxBatchSize, logger), logger)
			return srv.Run(ctx)
		},
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
