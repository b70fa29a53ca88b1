package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecgard/entretien/internal/api"
	"github.com/alecgard/entretien/internal/auth"
	"github.com/alecgard/entretien/internal/config"
	"github.com/alecgard/entretien/internal/conversation"
	"github.com/alecgard/entretien/internal/cycle"
	"github.com/alecgard/entretien/internal/metrics"
	"github.com/alecgard/entretien/internal/user"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Entretien review server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	userStore := user.NewStore(pool)
	sessionStore := auth.NewStore(pool)
	cycleStore := cycle.NewStore(pool)
	convStore := conversation.NewStore(pool)

	authService := auth.NewService(userStore, sessionStore, cfg.Session.TTL)
	guard := auth.NewGuard(userStore)
	cycleService := cycle.NewService(cycleStore)
	convService := conversation.NewService(convStore, cycleService, userStore, guard)

	router := api.NewRouter(api.RouterDeps{
		Auth:           authService,
		Guard:          guard,
		Users:          userStore,
		Importer:       user.NewImporter(userStore),
		Cycles:         cycleService,
		Conversations:  convService,
		Metrics:        m,
		DB:             pool,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}
