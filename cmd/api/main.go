package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"attendo/internal/api"
	"attendo/internal/app"
	"attendo/internal/attendance"
	"attendo/internal/config"
	"attendo/internal/httpmiddleware"
	"attendo/internal/logging"
)

func main() {
	cfg := config.Load()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = kv.Close() }()

	dir, err := app.Directory(cfg.Auth, kv)
	if err != nil {
		return err
	}

	q, closeQueue, err := app.Queue(cfg, kv)
	if err != nil {
		return err
	}
	defer func() { _ = closeQueue() }()

	svc, err := app.Service(cfg, kv, logger,
		attendance.WithQueue(q),
		attendance.WithMetrics(attendance.NewMetrics(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return err
	}

	auditor := attendance.NewAuditor(kv, cfg.Location(), logger)
	if cfg.QueueBackend == "memory" {
		// the in-memory queue only reaches consumers in this process
		go func() { _ = auditor.Run(ctx, q) }()
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go sweep(ctx, limiter)

	srv := api.NewServer(api.Deps{
		Auth:      cfg.Auth,
		KV:        kv,
		Directory: dir,
		Service:   svc,
		Auditor:   auditor,
		Limiter:   limiter,
		Logger:    logger,

		CORSOrigins: cfg.CORSOrigins,
		HSTS:        cfg.IsProduction(),
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", httpSrv.Addr), zap.String("store", cfg.Storage.Backend))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

func sweep(ctx context.Context, limiter *httpmiddleware.RateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			limiter.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
