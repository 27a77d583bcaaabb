// Package bootstrap builds the runtime dependencies shared by the binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/webklar/booking-platform/internal/config"
	"github.com/webklar/booking-platform/internal/customers"
	"github.com/webklar/booking-platform/internal/verification"
	"github.com/webklar/booking-platform/pkg/logging"
)

const (
	pingTimeout     = 5 * time.Second
	maxPostgresConn = 10
)

func redisOptions(cfg *appconfig.Config) *redis.Options {
	opts := &redis.Options{
		Addr:         strings.TrimSpace(cfg.RedisAddr),
		Password:     cfg.RedisPassword,
		DialTimeout:  pingTimeout,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// BuildRedisClient returns nil when REDIS_ADDR is unset. With verify set an
// unreachable server also yields nil so callers fall back to memory.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	logger = orDefault(logger)

	client := redis.NewClient(redisOptions(cfg))
	if !verify {
		return client
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable; verification state falls back to memory", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool returns nil when DATABASE_URL is unset or unreachable.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *pgxpool.Pool {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil
	}
	logger = orDefault(logger)

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("invalid DATABASE_URL", "error", err)
		return nil
	}
	poolCfg.MaxConns = maxPostgresConn

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres unreachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// BuildCustomerRepository prefers Postgres and falls back to memory.
func BuildCustomerRepository(pool *pgxpool.Pool, logger *logging.Logger) customers.Repository {
	if pool != nil {
		return customers.NewPostgresRepository(pool)
	}
	orDefault(logger).Warn("no database; customer projects are kept in memory")
	return customers.NewInMemoryRepository()
}

// BuildVerificationStore prefers Redis and falls back to memory.
func BuildVerificationStore(redisClient *redis.Client, logger *logging.Logger) verification.StateStore {
	if redisClient != nil {
		return verification.NewRedisStore(redisClient)
	}
	orDefault(logger).Warn("no redis; verification state is kept in memory")
	return verification.NewMemoryStore()
}

func orDefault(logger *logging.Logger) *logging.Logger {
	if logger == nil {
		return logging.Default()
	}
	return logger
}
