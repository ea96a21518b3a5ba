package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketboard/mbsync/internal/config"
)

// Execer runs a statement without returning rows. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schema creates the sale history archive. Rows are unique on every column
// the provider reports for a sale, so re-fetched history does not duplicate.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sale_history (
		item_id        INTEGER     NOT NULL,
		world_name     TEXT        NOT NULL,
		price_per_unit BIGINT      NOT NULL,
		quantity       BIGINT      NOT NULL,
		hq             BOOLEAN     NOT NULL,
		buyer_name     TEXT        NOT NULL,
		sold_at        TIMESTAMPTZ NOT NULL,
		archived_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (item_id, world_name, sold_at, buyer_name, price_per_unit, quantity, hq)
	)`,
	`CREATE INDEX IF NOT EXISTS sale_history_item_sold_at_idx
		ON sale_history (item_id, sold_at DESC)`,
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the archive tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
