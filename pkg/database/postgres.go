package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duitwise/duitwise-engine/pkg/config"
)

// DB is the engine's PostgreSQL handle, a pgxpool pool tuned from
// DatabaseConfig.
type DB struct {
	*pgxpool.Pool
}

// Connect opens and pings a connection pool sized from cfg. Connections
// are recycled on the configured lifetime so a long-lived pool survives
// server-side restarts and failovers.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.ConnLifetimeMins > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnLifetimeMins) * time.Minute
	}
	if cfg.ConnIdleMins > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnIdleMins) * time.Minute
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "duitwise-engine"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}
