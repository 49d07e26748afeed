package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spend-intake/internal/audit"
	"github.com/spend-intake/internal/cluster"
	"github.com/spend-intake/internal/hierarchy"
	"github.com/spend-intake/internal/store"
	"github.com/spend-intake/internal/web"
	"github.com/spend-intake/internal/web/handlers"
)

func createServeCmd(a *app) *cobra.Command {
	var (
		input    string
		sheet    string
		runLabel string
		addr     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve groups and suppliers over HTTP",
		Long: `Serves the read-only JSON API. With --input the file is clustered once at
startup; otherwise suppliers and the latest (or --run) stored run are read
from Postgres on each request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			order, err := hierarchy.ParseOrder(a.cfg.Cluster.Order)
			if err != nil {
				return err
			}
			cfg := web.DefaultConfig()
			cfg.Addr = a.cfg.Server.Addr
			if addr != "" {
				cfg.Addr = addr
			}
			cfg.APIKey = a.cfg.Server.APIKey
			cfg.Order = order

			opts, err := a.cfg.ClusterOptions()
			if err != nil {
				return err
			}
			builder, err := cluster.NewBuilder(opts, a.logger, nil)
			if err != nil {
				return err
			}

			var source handlers.Source
			if input != "" {
				tracker := audit.NewTracker("serve", a.logger)
				records, result, err := a.buildFromFile(cmd, input, sheet, tracker)
				if err != nil {
					return err
				}
				snap, err := handlers.NewSnapshot(records, result.Groups, len(result.Failures),
					cluster.NewNameIndex(records, a.logger, tracker))
				if err != nil {
					return err
				}
				source = handlers.NewStaticSource(snap)
			} else {
				conn, err := a.connect(ctx)
				if err != nil {
					return err
				}
				defer conn.Close()
				s := store.New(conn.DB)
				if err := s.EnsureSchema(ctx); err != nil {
					return err
				}
				source = &handlers.StoreSource{Store: s, RunLabel: runLabel, Builder: builder, Logger: a.logger}
			}

			return web.NewServer(cfg, source, a.logger).Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "serve this file instead of the database")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name (default from config)")
	cmd.Flags().StringVar(&runLabel, "run", "", "stored run to serve (default: latest)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
