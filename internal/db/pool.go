package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Pool is an alias for pgxpool.Pool
type Pool = pgxpool.Pool

// NewPool creates a PostgreSQL connection pool. The pool is pinged and the
// schema applied when the application starts. maxConns <= 0 keeps the pgx default.
func NewPool(lc fx.Lifecycle, logger *zap.Logger, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	logger.Info("initializing database connection pool",
		zap.String("host", config.ConnConfig.Host),
		zap.String("database", config.ConnConfig.Database),
		zap.Int32("max_conns", config.MaxConns),
	)

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to create connection pool: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("attempting to connect to database...")
			if err := pool.Ping(ctx); err != nil {
				logger.Error("database ping failed", zap.Error(err), zap.String("url", maskPassword(databaseURL)))
				return fmt.Errorf("[DATABASE CONNECTION FAILED] cannot reach database. Please check: 1) Database is running, 2) DATABASE_URL is correct, 3) Network/firewall allows connection. Error: %w", err)
			}
			logger.Info("database connection established successfully")
			if err := EnsureSchema(ctx, pool); err != nil {
				return err
			}
			logger.Info("database schema ready")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Close()
			logger.Info("database connection closed")
			return nil
		},
	})

	return pool, nil
}

// maskPassword hides the password of a database URL for logging
func maskPassword(url string) string {
	if len(url) == 0 {
		return "<empty>"
	}
	// Simple masking - find password part between : and @
	start := 0
	for i := 0; i < len(url); i++ {
		if url[i] == ':' && i > 0 && url[i-1] != '/' {
			start = i + 1
		}
		if url[i] == '@' && start > 0 {
			return url[:start] + "***" + url[i:]
		}
	}
	return url
}
