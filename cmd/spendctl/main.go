package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spend-intake/internal/config"
	"github.com/spend-intake/internal/db"
	"github.com/spend-intake/internal/debug"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	configPath string
	envFile    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spendctl",
		Short: "Supplier spend intake and clustering",
		Long: `Groups near-duplicate supplier names from an accounts payable extract,
rolls spend up onto the highest-spend name of each group and writes a
parent/child report. Suppliers can also be stored in Postgres, classified
against UNSPSC and served over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.envFile != "" {
				if err := config.LoadEnvFile(a.envFile); err != nil {
					return fmt.Errorf("failed to load %s: %w", a.envFile, err)
				}
			}
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.verbose {
				cfg.Verbose = true
			}
			logger, err := debug.NewLogger(cfg.Verbose)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default $SPEND_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", ".env file loaded before the default lookup")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(createClusterCmd(a))
	rootCmd.AddCommand(createLookupCmd(a))
	rootCmd.AddCommand(createImportCmd(a))
	rootCmd.AddCommand(createGroupCmd(a))
	rootCmd.AddCommand(createClassifyCmd(a))
	rootCmd.AddCommand(createAuditCmd(a))
	rootCmd.AddCommand(createServeCmd(a))
	rootCmd.AddCommand(createPingCmd(a))

	return rootCmd
}

// connect opens the configured database.
func (a *app) connect(ctx context.Context) (*db.Connection, error) {
	conn, err := db.NewConnection(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Connected to database",
		zap.String("host", a.cfg.Database.Host),
		zap.String("database", a.cfg.Database.Name))
	return conn, nil
}

// createPingCmd creates a command to test database connectivity
func createPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "Database connection successful!")

			var count int
			err = conn.DB.QueryRowContext(cmd.Context(), "SELECT COUNT(*) FROM supplier").Scan(&count)
			if err != nil {
				a.logger.Warn("Could not count suppliers", zap.Error(err))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Suppliers loaded: %d\n", count)
			return nil
		},
	}
}
