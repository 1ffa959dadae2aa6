package main

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/activitydedup/internal/config"
	"example.com/activitydedup/internal/persistence/postgres"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dedup-scanner",
	Short: "Backfill duplicate-activity flags",
	Long:  "Scans an owner's activities month by month for cross-source duplicates and records merge-candidate flags.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	return postgres.Connect(ctx, cfg.PostgresURL, nil)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
