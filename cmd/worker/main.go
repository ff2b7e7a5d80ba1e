package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"attendo/internal/app"
	"attendo/internal/attendance"
	"attendo/internal/config"
	"attendo/internal/logging"
)

// Worker consumes attendance.marked events and keeps the per-day audit trail.
func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		logger.Warn("queue backend is not shared between processes; the worker will see no events",
			zap.String("queue_backend", cfg.QueueBackend))
	}

	kv, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store open failed", zap.Error(err))
	}
	defer func() { _ = kv.Close() }()

	q, closeQueue, err := app.Queue(cfg, kv)
	if err != nil {
		logger.Fatal("queue init failed", zap.Error(err))
	}
	defer func() { _ = closeQueue() }()

	auditor := attendance.NewAuditor(kv, cfg.Location(), logger)

	logger.Info("worker started, waiting for messages", zap.String("queue_key", cfg.QueueKey))
	if err := auditor.Run(ctx, q); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		return
	}
	logger.Info("worker stopped")
}
