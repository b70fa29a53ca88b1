package main

import (
	"context"
	"log/slog"

	"github.com/alecgard/entretien/internal/auth"
	"github.com/alecgard/entretien/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var cleanupSessionsCmd = &cobra.Command{
	Use:   "cleanup-sessions",
	Short: "Delete expired sessions",
	RunE:  runCleanupSessions,
}

func init() {
	rootCmd.AddCommand(cleanupSessionsCmd)
}

func runCleanupSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deleted, err := auth.NewStore(pool).CleanExpired(ctx)
	if err != nil {
		return err
	}
	slog.Info("expired sessions removed", "count", deleted)
	return nil
}
