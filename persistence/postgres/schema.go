package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS flow_drafts (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    version    INT NOT NULL,
    data       TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS flow_versions (
    flow_id      TEXT NOT NULL,
    version      INT NOT NULL,
    data         TEXT NOT NULL,
    published_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (flow_id, version)
);

CREATE TABLE IF NOT EXISTS flow_records (
    id              TEXT PRIMARY KEY,
    flow_id         TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    key             TEXT NOT NULL,
    value           TEXT NOT NULL,
    variables       JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_flow_records_conversation ON flow_records(flow_id, conversation_id);
`

// CreateSchema creates the flow definition and record tables if they don't exist.
func CreateSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schemaSQL)
	return err
}

func DropSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `DROP TABLE IF EXISTS flow_records, flow_versions, flow_drafts CASCADE;`)
	return err
}
