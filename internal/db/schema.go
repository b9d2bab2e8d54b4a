package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS enterprise_clients (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	key_hash      TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	tier          TEXT NOT NULL,
	permissions   TEXT[] NOT NULL DEFAULT '{}',
	monthly_quota BIGINT NOT NULL,
	used_quota    BIGINT NOT NULL DEFAULT 0 CHECK (used_quota >= 0),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS relay_records (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	product_id   TEXT NOT NULL,
	data_hash    TEXT NOT NULL,
	tx_hash      TEXT NOT NULL,
	status       TEXT NOT NULL,
	block_number BIGINT,
	recorded_at  TIMESTAMPTZ NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	payload      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS relay_records_product_idx ON relay_records (product_id, recorded_at);
`

// EnsureSchema creates the gateway tables when they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("[DATABASE] failed to apply schema: %w", err)
	}
	return nil
}
