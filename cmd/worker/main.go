package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/partsync/internal/application"
	"github.com/JonMunkholm/partsync/internal/config"
	"github.com/JonMunkholm/partsync/internal/logging"
)

func main() {
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Queue.Driver != config.DriverRedis {
		slog.Error("the worker needs QUEUE_DRIVER=redis; the memory queue is served by the server's own workers")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	slog.Info("worker starting",
		"descriptor", cfg.Database.Name,
		"queue", cfg.Queue.Key,
		"workers", cfg.Queue.Workers,
	)
	if err := app.RunWorkers(ctx); err != nil {
		slog.Error("worker stopped", "error", err)
		return
	}
	slog.Info("worker stopped")
}
