package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS networks (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name       TEXT NOT NULL UNIQUE,
	format     TEXT NOT NULL,
	source     TEXT NOT NULL,
	variables  INTEGER NOT NULL,
	edges      INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS queries (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	network_id      UUID NOT NULL REFERENCES networks(id) ON DELETE CASCADE,
	variables       TEXT[] NOT NULL,
	evidence        JSONB NOT NULL DEFAULT '{}',
	heuristic       TEXT NOT NULL,
	result_rows     JSONB NOT NULL,
	duration_micros BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS queries_network_created_idx ON queries (network_id, created_at DESC);
`

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
