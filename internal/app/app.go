// Package app assembles services from configuration for the attendo binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"attendo/internal/attendance"
	"attendo/internal/auth"
	"attendo/internal/config"
	"attendo/internal/geo"
	"attendo/internal/logging"
	"attendo/internal/queue"
	"attendo/internal/store"
)

// Fence returns the configured site fence.
func Fence(cfg config.Site) geo.Fence {
	return geo.Fence{
		Center:   geo.Point{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
		RadiusKm: cfg.RadiusKm,
	}
}

// LocateOptions maps geo config onto locator options.
func LocateOptions(cfg config.Geo) geo.Options {
	return geo.Options{HighAccuracy: cfg.HighAccuracy, Timeout: cfg.Timeout, MaxAge: cfg.MaxAge}
}

// Geocoder returns Nominatim when a URL is configured and formatted coordinates otherwise,
// behind an LRU cache unless the cache size is zero.
func Geocoder(cfg config.Geo) (geo.Geocoder, error) {
	var g geo.Geocoder = geo.CoordinateGeocoder{}
	if cfg.GeocoderURL != "" {
		g = geo.NewNominatim(cfg.GeocoderURL, cfg.GeocoderUserAgent)
	}
	if cfg.GeocoderCacheSize <= 0 {
		return g, nil
	}
	cached, err := geo.NewCached(g, cfg.GeocoderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("geocoder cache: %w", err)
	}
	return cached, nil
}

// Directory builds the identity directory with the configured credential hashing.
func Directory(cfg config.Auth, kv store.KV) (*auth.Directory, error) {
	hasher, err := auth.NewHasher(cfg.CredentialHashing)
	if err != nil {
		return nil, err
	}
	return auth.NewDirectory(kv, hasher), nil
}

// Queue builds the event queue. The redis backend reuses the store's client when the store is redis.
// The returned close func releases any client created here.
func Queue(cfg config.App, kv store.KV) (queue.Queue, func() error, error) {
	noop := func() error { return nil }
	switch cfg.QueueBackend {
	case "memory", "":
		return queue.NewInMemory(64), noop, nil
	case "redis":
		if r, ok := kv.(*store.Redis); ok {
			return queue.NewRedisQueue(r.Client, cfg.QueueKey), noop, nil
		}
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Storage.RedisAddr,
			Password:    cfg.Storage.RedisPassword,
			DB:          cfg.Storage.RedisDB,
			DialTimeout: 2 * time.Second,
		})
		return queue.NewRedisQueue(client, cfg.QueueKey), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

// Service builds the attendance service for cfg. extra options are applied last.
func Service(cfg config.App, kv store.KV, logger *zap.Logger, extra ...attendance.Option) (*attendance.Service, error) {
	geocoder, err := Geocoder(cfg.Geo)
	if err != nil {
		return nil, err
	}
	opts := []attendance.Option{
		attendance.WithGeocoder(geocoder),
		attendance.WithLocateOptions(LocateOptions(cfg.Geo)),
		attendance.WithLocation(cfg.Location()),
		attendance.WithStreakWindow(cfg.StreakWindowDays),
		attendance.WithLogger(logging.OrNop(logger)),
	}
	return attendance.NewService(attendance.NewLedger(kv), Fence(cfg.Site), append(opts, extra...)...), nil
}

// Open connects the configured store and logs any config values that fell back to defaults.
func Open(ctx context.Context, cfg config.App, logger *zap.Logger) (store.KV, error) {
	logger = logging.OrNop(logger)
	for _, w := range cfg.Warnings {
		logger.Warn("config", zap.String("detail", w))
	}
	return store.Open(ctx, cfg.Storage, logger)
}
