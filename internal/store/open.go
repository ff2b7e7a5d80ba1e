package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"attendo/internal/config"
	"attendo/internal/logging"
)

// Open builds the KV selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Storage, logger *zap.Logger) (KV, error) {
	logger = logging.OrNop(logger)
	switch cfg.Backend {
	case "memory":
		logger.Info("using in-memory store")
		return NewMemory(), nil
	case "redis":
		r := NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Namespace)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("redis store connected", zap.String("addr", cfg.RedisAddr), zap.String("namespace", cfg.Namespace))
		return r, nil
	case "sqlite", "":
		db, err := NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.SQLitePath))
		return db, nil
	case "postgres":
		db, err := NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("postgres store connected")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
