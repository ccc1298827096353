package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/contactsync/internal/config"
	"github.com/JonMunkholm/contactsync/internal/core"
	"github.com/JonMunkholm/contactsync/internal/logging"
	"github.com/JonMunkholm/contactsync/internal/remote"
	"github.com/JonMunkholm/contactsync/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Variables already set in the environment win over .env.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	history, closeHistory, err := openHistory(ctx, &cfg.Database)
	if err != nil {
		slog.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer closeHistory()

	api := remote.New(cfg.API.BaseURL, remote.NewHTTPClient(cfg.API.Timeout))

	service := core.NewService(api, history, core.ServiceConfig{
		MaxPerSecond:  cfg.Throttle.PerSecond,
		MaxPerMinute:  cfg.Throttle.PerMinute,
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWaitTime,
		ImportTimeout: cfg.Import.Timeout,
		JobRetention:  cfg.Import.JobRetention,
		CSVMode:       core.CSVMode(cfg.Import.CSVMode),
		TagColor:      cfg.API.TagColor,
	}, slog.Default())

	server := web.NewServer(service, cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if jobs := service.Limits().Jobs; jobs.Active > 0 {
			slog.Info("cancelling running imports", "active", jobs.Active)
		}
		shutdown(shutdownCtx, service, server)
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}

	// Start returns as soon as the listener closes; the history store must
	// stay open until running imports have recorded their results.
	<-done
	slog.Info("server stopped")
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown cancels running imports and waits for them to drain before the
// HTTP server stops, so SSE listeners see the terminal event.
func shutdown(ctx context.Context, service, server shutdowner) {
	if err := service.Shutdown(ctx); err != nil {
		slog.Warn("imports did not stop in time", "error", err)
	}
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// openHistory returns the Postgres history store when a database is
// configured and the in-memory store otherwise.
func openHistory(ctx context.Context, cfg *config.DatabaseConfig) (core.HistoryStore, func(), error) {
	if !cfg.Enabled() {
		slog.Info("no database configured, keeping history in memory")
		return core.NewMemoryHistory(core.DefaultHistoryLimit), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	history := core.NewPostgresHistory(pool)
	if err := history.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	slog.Info("connected to database", "database", poolConfig.ConnConfig.Database)
	return history, pool.Close, nil
}
