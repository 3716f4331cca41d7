package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/flash_settlement/internal/config"
)

const connectTimeout = 10 * time.Second

// Backends holds the optional external stores. A nil field means the in-memory
// implementation is used instead.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Connect opens the backends named in cfg. Load has already rejected missing URLs
// outside development, so an empty URL here selects the in-memory fallback.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backends, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	b := &Backends{}
	if cfg.DatabaseURL != "" {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger")
	}

	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, idempotency disabled and rate limits are per instance")
	}
	return b, nil
}

// Close releases every open backend.
func (b *Backends) Close() error {
	if b == nil {
		return nil
	}
	if b.DB != nil {
		b.DB.Close()
	}
	if b.Cache != nil {
		return b.Cache.Close()
	}
	return nil
}

// NewPostgresPool configures and returns a PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
