package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the catalog schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration. Backfill, when set,
// runs in the same transaction after Up.
type Migration struct {
	Version  string
	Up       string
	Down     string
	Backfill func(ctx context.Context, tx *sql.Tx) error
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version:  "1.1.0",
		Up:       migrationV11Up,
		Down:     migrationV11Down,
		Backfill: backfillSearchColumns,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Categories table
CREATE TABLE IF NOT EXISTS categories (
    id TEXT PRIMARY KEY,
    name TEXT,
    is_deleted BOOLEAN NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Catalog items table
CREATE TABLE IF NOT EXISTS catalog_items (
    id TEXT PRIMARY KEY,
    name TEXT,
    category_id TEXT,
    reporting_category_name TEXT,
    is_deleted BOOLEAN NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_name ON catalog_items(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_items_category ON catalog_items(category_id);
CREATE INDEX IF NOT EXISTS idx_items_deleted ON catalog_items(is_deleted);

-- Item variations table
CREATE TABLE IF NOT EXISTS item_variations (
    id TEXT PRIMARY KEY,
    item_id TEXT NOT NULL,
    sku TEXT,
    upc TEXT,
    price_amount INTEGER,
    ordinal INTEGER NOT NULL DEFAULT 0,
    is_deleted BOOLEAN NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_variations_item ON item_variations(item_id, ordinal);
CREATE INDEX IF NOT EXISTS idx_variations_sku ON item_variations(sku COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_variations_upc ON item_variations(upc);

-- Item taxes table
CREATE TABLE IF NOT EXISTS item_taxes (
    item_id TEXT NOT NULL,
    tax_id TEXT NOT NULL,
    PRIMARY KEY (item_id, tax_id)
);

-- Item images table
CREATE TABLE IF NOT EXISTS item_images (
    id TEXT PRIMARY KEY,
    item_id TEXT NOT NULL,
    url TEXT NOT NULL,
    is_primary BOOLEAN NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_images_item ON item_images(item_id, is_primary);

-- Team data overlay (case UPCs, vendor info)
CREATE TABLE IF NOT EXISTS team_data (
    item_id TEXT PRIMARY KEY,
    case_upc TEXT,
    case_cost TEXT,
    case_quantity INTEGER,
    vendor TEXT,
    discontinued BOOLEAN NOT NULL DEFAULT 0,
    notes TEXT,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_team_data_case_upc ON team_data(case_upc);
`

const migrationV1Down = `
DROP TABLE IF EXISTS team_data;
DROP TABLE IF EXISTS item_images;
DROP TABLE IF EXISTS item_taxes;
DROP TABLE IF EXISTS item_variations;
DROP TABLE IF EXISTS catalog_items;
DROP TABLE IF EXISTS categories;
DROP TABLE IF EXISTS schema_version;
`

// Search columns hold tokenizer.Normalize output so LIKE matching agrees
// with query normalization beyond ASCII
const migrationV11Up = `
ALTER TABLE categories ADD COLUMN name_norm TEXT;
ALTER TABLE catalog_items ADD COLUMN name_norm TEXT;
ALTER TABLE catalog_items ADD COLUMN reporting_category_norm TEXT;
ALTER TABLE item_variations ADD COLUMN sku_norm TEXT;
ALTER TABLE item_variations ADD COLUMN upc_norm TEXT;

CREATE INDEX IF NOT EXISTS idx_items_name_norm ON catalog_items(name_norm);
CREATE INDEX IF NOT EXISTS idx_variations_sku_norm ON item_variations(sku_norm);
CREATE INDEX IF NOT EXISTS idx_variations_upc_norm ON item_variations(upc_norm);
`

const migrationV11Down = `
DROP INDEX IF EXISTS idx_variations_upc_norm;
DROP INDEX IF EXISTS idx_variations_sku_norm;
DROP INDEX IF EXISTS idx_items_name_norm;

ALTER TABLE item_variations DROP COLUMN upc_norm;
ALTER TABLE item_variations DROP COLUMN sku_norm;
ALTER TABLE catalog_items DROP COLUMN reporting_category_norm;
ALTER TABLE catalog_items DROP COLUMN name_norm;
ALTER TABLE categories DROP COLUMN name_norm;
`

// searchColumns pairs each display column with its normalized copy
var searchColumns = []struct {
	table, key, src, dst string
}{
	{"categories", "id", "name", "name_norm"},
	{"catalog_items", "id", "name", "name_norm"},
	{"catalog_items", "id", "reporting_category_name", "reporting_category_norm"},
	{"item_variations", "id", "sku", "sku_norm"},
	{"item_variations", "id", "upc", "upc_norm"},
}

// backfillSearchColumns normalizes rows written before the search columns existed
func backfillSearchColumns(ctx context.Context, tx *sql.Tx) error {
	type pair struct{ key, value string }

	for _, c := range searchColumns {
		rows, err := tx.QueryContext(ctx, fmt.Sprintf(
			"SELECT %s, %s FROM %s WHERE %s IS NOT NULL", c.key, c.src, c.table, c.src))
		if err != nil {
			return fmt.Errorf("read %s.%s: %w", c.table, c.src, err)
		}
		var pending []pair
		for rows.Next() {
			var p pair
			if err := rows.Scan(&p.key, &p.value); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan %s.%s: %w", c.table, c.src, err)
			}
			pending = append(pending, p)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return fmt.Errorf("read %s.%s: %w", c.table, c.src, err)
		}

		update := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", c.table, c.dst, c.key)
		for _, p := range pending {
			if _, err := tx.ExecContext(ctx, update, searchKey(p.value), p.key); err != nil {
				return fmt.Errorf("update %s.%s: %w", c.table, c.dst, err)
			}
		}
	}
	return nil
}

// SchemaVersion returns the most recently applied migration version,
// or 0.0.0 on a fresh database
func SchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	var raw string
	err = db.QueryRowContext(ctx,
		"SELECT version FROM schema_version ORDER BY applied_at DESC, version DESC LIMIT 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && raw == "") {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}

	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid current schema version %s: %w", raw, err)
	}
	return v, nil
}

// ApplyMigrations runs all pending migrations, each in its own transaction
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range AllMigrations {
		target, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(target) {
			continue
		}

		if err := runMigration(ctx, db, m.Up, m.Backfill, "INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
		current = target
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return errors.New("no migrations to rollback")
	}

	for i := len(AllMigrations) - 1; i >= 0; i-- {
		m := AllMigrations[i]
		v, err := semver.NewVersion(m.Version)
		if err != nil || !v.Equal(current) {
			continue
		}
		// The down script may drop schema_version itself, so the record delete
		// is skipped when the table is gone.
		if err := runMigration(ctx, db, m.Down, nil, "", ""); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", m.Version, err)
		}
		_, _ = db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", m.Version)
		return nil
	}

	return fmt.Errorf("migration %s not found", current)
}

func runMigration(ctx context.Context, db *sql.DB, script string, backfill func(context.Context, *sql.Tx) error, record, version string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if backfill != nil {
		if err := backfill(ctx, tx); err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
	}
	if record != "" {
		if _, err := tx.ExecContext(ctx, record, version); err != nil {
			return fmt.Errorf("failed to record version: %w", err)
		}
	}
	return tx.Commit()
}
