package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/harvestline/harvestline-backend/pkg/database"
)

// Migration is one versioned schema step
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// Migrations is the ordered schema history of the stock store
var Migrations = []Migration{
	{
		Version: "20240101000001",
		Name:    "create_counters",
		SQL: `
CREATE TABLE IF NOT EXISTS counters (
    name  TEXT PRIMARY KEY,
    value BIGINT NOT NULL DEFAULT 0 CONSTRAINT counters_value_non_negative CHECK (value >= 0)
);`,
	},
	{
		Version: "20240101000002",
		Name:    "create_materials",
		SQL: `
CREATE TABLE IF NOT EXISTS materials (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    quantity      NUMERIC(18,3) NOT NULL DEFAULT 0
                  CONSTRAINT materials_quantity_non_negative CHECK (quantity >= 0),
    unit          TEXT NOT NULL DEFAULT '',
    reorder_level NUMERIC(18,3) NOT NULL DEFAULT 0
                  CONSTRAINT materials_reorder_level_non_negative CHECK (reorder_level >= 0),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS materials_name_key ON materials (lower(name));`,
	},
	{
		Version: "20240101000003",
		Name:    "create_stock_batches",
		SQL: `
CREATE TABLE IF NOT EXISTS stock_batches (
    id         TEXT PRIMARY KEY,
    code       TEXT NOT NULL CONSTRAINT stock_batches_code_key UNIQUE,
    kind       TEXT NOT NULL CONSTRAINT stock_batches_kind_valid CHECK (kind IN ('arrival', 'production')),
    expiry     TIMESTAMPTZ,
    notes      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_stock_batches_expiry ON stock_batches (expiry, id) WHERE expiry IS NOT NULL;

CREATE TABLE IF NOT EXISTS stock_batch_refs (
    batch_id    TEXT NOT NULL REFERENCES stock_batches(id) ON DELETE CASCADE,
    line_no     INT NOT NULL,
    material_id TEXT NOT NULL REFERENCES materials(id),
    quantity    NUMERIC(18,3) NOT NULL CONSTRAINT stock_batch_refs_quantity_positive CHECK (quantity > 0),
    direction   TEXT NOT NULL CONSTRAINT stock_batch_refs_direction_valid CHECK (direction IN ('receive', 'consume')),
    PRIMARY KEY (batch_id, line_no)
);

CREATE INDEX IF NOT EXISTS idx_stock_batch_refs_material ON stock_batch_refs (material_id);`,
	},
	{
		Version: "20240101000004",
		Name:    "create_alerts",
		SQL: `
CREATE TABLE IF NOT EXISTS alerts (
    id         TEXT PRIMARY KEY,
    type       TEXT NOT NULL CONSTRAINT alerts_type_valid CHECK (type IN ('low_stock', 'expiring', 'informational')),
    subject_id TEXT NOT NULL,
    message    TEXT NOT NULL,
    is_read    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    read_at    TIMESTAMPTZ
);

-- at most one unread deduplicated alert per subject and type
CREATE UNIQUE INDEX IF NOT EXISTS alerts_one_open
    ON alerts (subject_id, type)
    WHERE is_read = FALSE AND type <> 'informational';

CREATE INDEX IF NOT EXISTS idx_alerts_subject_created ON alerts (subject_id, type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts (created_at DESC);`,
	},
	{
		Version: "20240101000005",
		Name:    "create_stock_movements",
		SQL: `
CREATE TABLE IF NOT EXISTS stock_movements (
    id          TEXT PRIMARY KEY,
    code        TEXT NOT NULL CONSTRAINT stock_movements_code_key UNIQUE,
    material_id TEXT NOT NULL REFERENCES materials(id),
    delta       NUMERIC(18,3) NOT NULL,
    reason      TEXT NOT NULL DEFAULT '',
    created_by  TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_stock_movements_material ON stock_movements (material_id, created_at DESC);`,
	},
	{
		Version: "20240101000006",
		Name:    "add_stock_batch_version",
		SQL: `
ALTER TABLE stock_batches ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1;`,
	},
}

// Migrate applies every migration not yet recorded in schema_migrations.
// Each step runs in its own transaction under an advisory lock, so several
// instances starting together apply each step exactly once.
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range Migrations {
		m := m
		err := db.Transaction(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('harvestline_stock_migrations'))`); err != nil {
				return err
			}

			var applied bool
			if err := tx.GetContext(ctx, &applied,
				`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version); err != nil {
				return err
			}
			if applied {
				return nil
			}

			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s_%s failed: %w", m.Version, m.Name, err)
		}
	}

	return nil
}
