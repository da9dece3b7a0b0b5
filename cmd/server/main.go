package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solexplorer/service/bootstrap"
	"github.com/brojonat/solexplorer/service/config"
	"github.com/brojonat/solexplorer/service/db"
	"github.com/brojonat/solexplorer/service/metrics"
	natspkg "github.com/brojonat/solexplorer/service/nats"
	"github.com/brojonat/solexplorer/service/server"
	"github.com/brojonat/solexplorer/service/solana"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	apiKeyCacheTTL     = 30 * time.Second
	usageFlushInterval = 15 * time.Second
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"network", cfg.SolanaNetwork,
		"commitment", cfg.RPCCommitment,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	svc, closeExplorer, err := bootstrap.NewExplorer(ctx, cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to initialize explorer", "error", err)
		os.Exit(1)
	}
	defer closeExplorer()

	// Optional API key store
	var keys *server.APIKeyGate
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database, api keys enabled")

		keys = server.NewAPIKeyGate(db.NewStore(dbPool, metricsCollector), apiKeyCacheTTL, metricsCollector, logger)
		go keys.RunUsageFlusher(ctx, usageFlushInterval)
	} else {
		logger.Info("DATABASE_URL not set, api keys disabled")
	}

	// Head stream: NATS fan-out when configured, otherwise per-connection polling
	var feed server.HeadFeed
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		subscriber, err := natspkg.NewSubscriber(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS subscriber", "error", err)
			os.Exit(1)
		}
		defer subscriber.Close()
		logger.Info("connected to NATS", "url", cfg.NATSURL)

		watcher := natspkg.NewHeadWatcher(svc, publisher, cfg.HeadPollInterval, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("head watcher stopped", "error", err)
			}
		}()
		feed = subscriber
	} else {
		feed = server.NewPollingFeed(svc, cfg.HeadPollInterval, logger)
		logger.Info("NATS_URL not set, head stream polls per connection")
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, svc, feed, keys, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", solana.RedactURL(cfg.SolanaRPCURL),
		"redis", cfg.RedisURL != "",
		"nats", cfg.NATSURL != "",
		"api_keys", keys != nil,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		if keys != nil {
			if err := keys.FlushUsage(shutdownCtx); err != nil {
				logger.Error("failed to flush api key usage", "error", err)
			}
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
