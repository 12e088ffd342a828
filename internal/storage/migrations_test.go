package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyMigrations(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, db))

	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	tables := []string{
		"schema_version", "categories", "catalog_items", "item_variations",
		"item_taxes", "item_images", "team_data",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, ApplyMigrations(ctx, db))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(AllMigrations), count)
}

func TestApplyMigrations_BackfillsSearchColumns(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	// A database created before the search columns existed
	v1 := AllMigrations[0]
	require.NoError(t, runMigration(ctx, db, v1.Up, nil, "INSERT INTO schema_version (version) VALUES (?)", v1.Version))
	_, err := db.ExecContext(ctx, `INSERT INTO catalog_items (id, name, reporting_category_name) VALUES ('1', 'CAFÉ Ｌａｔｔｅ', 'Hot Drinks')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO item_variations (id, item_id, sku, upc) VALUES ('1-a', '1', 'LAT-Ä1', '0123')`)
	require.NoError(t, err)

	require.NoError(t, ApplyMigrations(ctx, db))

	var name, category, sku, upc string
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT name_norm, reporting_category_norm FROM catalog_items WHERE id = '1'").Scan(&name, &category))
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT sku_norm, upc_norm FROM item_variations WHERE id = '1-a'").Scan(&sku, &upc))
	assert.Equal(t, "café latte", name)
	assert.Equal(t, "hot drinks", category)
	assert.Equal(t, "lat-ä1", sku)
	assert.Equal(t, "0123", upc)
}

func TestSchemaVersion_FreshDatabase(t *testing.T) {
	db := openRawDB(t)

	v, err := SchemaVersion(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", v.String())
}

func TestRollbackMigration(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, db))

	// Rolling back the search columns keeps the catalog tables
	require.NoError(t, RollbackMigration(ctx, db))
	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())
	var column string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM pragma_table_info('catalog_items') WHERE name = 'name_norm'").Scan(&column)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, RollbackMigration(ctx, db))

	var name string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='catalog_items'").Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	v, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", v.String())

	// Nothing left to roll back
	assert.Error(t, RollbackMigration(ctx, db))
}
