package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagehq/vantage/pkg/config"
)

// acquireTimeout bounds how long opening a new store connection may take.
// It is applied as the connect timeout; a caller waiting for a free pooled
// connection is bounded only by its own context.
const acquireTimeout = 60 * time.Second

// PoolSettings tunes a connection pool beyond the config file values
type PoolSettings struct {
	MinConns        int32
	MaxConns        int32
	MaxConnIdleTime time.Duration
}

// NewPool creates a pgx connection pool from database configuration.
// Each serving worker and each ingestion run builds its own pool; pools are
// never shared across processes or across the serving/ingestion boundary.
func NewPool(ctx context.Context, dbCfg config.DatabaseConfig, settings PoolSettings) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	poolCfg.MinConns = settings.MinConns
	poolCfg.MaxConns = settings.MaxConns
	if settings.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = settings.MaxConnIdleTime
	}
	poolCfg.ConnConfig.ConnectTimeout = acquireTimeout

	if dbCfg.SSL {
		// Managed stores commonly present certificates that do not verify
		// against the local roots; match the relaxed verification the
		// connection string callers expect.
		poolCfg.ConnConfig.TLSConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

// ServingPool builds the request-serving pool for one worker process
func ServingPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return NewPool(ctx, cfg.Database, PoolSettings{
		MinConns: cfg.Database.Pool.Min,
		MaxConns: cfg.Database.Pool.Max,
	})
}

// IngestPool builds the small private pool owned by one ingestion run
func IngestPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return NewPool(ctx, cfg.Database, PoolSettings{
		MinConns:        2,
		MaxConns:        4,
		MaxConnIdleTime: time.Duration(cfg.ETL.PoolIdleTimeoutMs) * time.Millisecond,
	})
}
