package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/catalogsearch/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func price(v int64) *int64 { return &v }

// seedCatalog loads a small catalog covering deleted rows, overrides and case UPCs
func seedCatalog(t *testing.T, s *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.UpsertCategory(ctx, &Category{ID: "dairy", Name: "Dairy"}))
	require.NoError(t, s.UpsertCategory(ctx, &Category{ID: "old", Name: "Old Stuff", IsDeleted: true}))

	items := []types.CatalogItem{
		{ID: "1", Name: "Organic Whole Milk", CategoryID: "dairy"},
		{ID: "2", Name: "Milk", CategoryID: "dairy", CategoryName: "Fresh Milk"},
		{ID: "3", Name: "Deleted Milk", CategoryID: "dairy", IsDeleted: true},
		{ID: "4", Name: "Cheddar Cheese", CategoryID: "old"},
	}
	for i := range items {
		require.NoError(t, s.UpsertItem(ctx, &items[i]))
	}

	variations := []types.ItemVariation{
		{ID: "1-a", ParentItemID: "1", SKU: "MLK-001", UPC: "012345678905", PriceAmount: price(499)},
		{ID: "1-b", ParentItemID: "1", SKU: "MLK-001-HALF", UPC: "012345678912", PriceAmount: price(299), Ordinal: 1},
		{ID: "2-a", ParentItemID: "2", SKU: "MLK-002", UPC: "099999999999"},
		{ID: "2-x", ParentItemID: "2", SKU: "MLK-GONE", UPC: "011111111111", IsDeleted: true},
		{ID: "3-a", ParentItemID: "3", SKU: "MLK-003", UPC: "033333333333"},
		{ID: "4-a", ParentItemID: "4", SKU: "CHS-001", UPC: "044444444444", PriceAmount: price(650)},
	}
	for i := range variations {
		require.NoError(t, s.UpsertVariation(ctx, &variations[i]))
	}

	require.NoError(t, s.UpsertTeamData(ctx, &types.TeamData{
		ItemID:       "1",
		CaseUPC:      "10012345678902",
		CaseCost:     decimal.NewNullDecimal(decimal.RequireFromString("23.88")),
		CaseQuantity: 12,
		Vendor:       "Valley Farms",
		Notes:        "Keep refrigerated",
	}))
	require.NoError(t, s.UpsertTeamData(ctx, &types.TeamData{
		ItemID:  "3",
		CaseUPC: "10012345678902",
	}))

	require.NoError(t, s.SetItemTaxes(ctx, "1", []string{"state", "city"}))
	require.NoError(t, s.UpsertImage(ctx, "1", types.ImageRef{ID: "img-2", URL: "https://img/2.png"}, false))
	require.NoError(t, s.UpsertImage(ctx, "1", types.ImageRef{ID: "img-1", URL: "https://img/1.png"}, true))
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)
	assert.NoError(t, storage.Ready(context.Background()))
}

func TestClose(t *testing.T) {
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	// Second close is a no-op
	assert.NoError(t, storage.Close())

	ctx := context.Background()
	assert.ErrorIs(t, storage.Ready(ctx), types.ErrRepositoryUnavailable)
	_, err = storage.FindItemsByField(ctx, types.FieldName, []string{"milk"}, 10)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = storage.FindCaseUpc(ctx, "123")
	assert.ErrorIs(t, err, types.ErrRepositoryUnavailable)
}

func TestFindItemsByField_Name(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)
	ctx := context.Background()

	rows, err := storage.FindItemsByField(ctx, types.FieldName, []string{"milk"}, 200)
	require.NoError(t, err)
	require.Len(t, rows, 2, "deleted item must be excluded")

	// Ordered by normalized name
	assert.Equal(t, "2", rows[0].ItemID)
	assert.Equal(t, "1", rows[1].ItemID)

	// Name rows carry the first live variation
	assert.Equal(t, "1-a", rows[1].VariationID)
	assert.Equal(t, "MLK-001", rows[1].SKU)
	assert.Equal(t, "012345678905", rows[1].UPC)
	require.NotNil(t, rows[1].PriceAmount)
	assert.Equal(t, int64(499), *rows[1].PriceAmount)
	assert.Equal(t, "Dairy", rows[1].CategoryName)

	// Reporting override wins over the category row
	assert.Equal(t, "Fresh Milk", rows[0].CategoryName)
	assert.Nil(t, rows[0].PriceAmount)
}

func TestFindItemsByField_AllTokensRequired(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)
	ctx := context.Background()

	rows, err := storage.FindItemsByField(ctx, types.FieldName, []string{"whole", "milk"}, 200)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].ItemID)

	rows, err = storage.FindItemsByField(ctx, types.FieldName, []string{"whole", "cheese"}, 200)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFindItemsByField_SKUReturnsEachVariation(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)
	ctx := context.Background()

	rows, err := storage.FindItemsByField(ctx, types.FieldSKU, []string{"mlk", "001"}, 200)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1-a", rows[0].VariationID)
	assert.Equal(t, "1-b", rows[1].VariationID)

	// Deleted variations never match
	rows, err = storage.FindItemsByField(ctx, types.FieldSKU, []string{"gone"}, 200)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFindItemsByField_Barcode(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)

	rows, err := storage.FindItemsByField(context.Background(), types.FieldBarcode, []string{"012345678905"}, 200)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].ItemID)
}

func TestFindItemsByField_Category(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)
	ctx := context.Background()

	rows, err := storage.FindItemsByField(ctx, types.FieldCategory, []string{"dairy"}, 200)
	require.NoError(t, err)
	require.Len(t, rows, 1, "item 2 is reported under its override")
	assert.Equal(t, "1", rows[0].ItemID)

	// Deleted categories do not contribute a name
	rows, err = storage.FindItemsByField(ctx, types.FieldCategory, []string{"old"}, 200)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFindItemsByField_Limit(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)

	rows, err := storage.FindItemsByField(context.Background(), types.FieldName, []string{"milk"}, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFindItemsByField_UnicodeCaseAndWidth(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertCategory(ctx, &Category{ID: "cafe", Name: "CAFÉ BAR"}))
	require.NoError(t, storage.UpsertItem(ctx, &types.CatalogItem{ID: "1", Name: "CAFÉ LATTE", CategoryID: "cafe"}))
	require.NoError(t, storage.UpsertItem(ctx, &types.CatalogItem{ID: "2", Name: "Ｍｉｌｋ"}))
	require.NoError(t, storage.UpsertVariation(ctx, &types.ItemVariation{ID: "2-a", ParentItemID: "2", SKU: "ÅBC-Ｘ１"}))

	tests := []struct {
		name   string
		field  types.Field
		tokens []string
		want   string
	}{
		{"LowercaseAccent", types.FieldName, []string{"café"}, "1"},
		{"UppercaseAccent", types.FieldName, []string{"CAFÉ"}, "1"},
		{"Decomposed", types.FieldName, []string{"cafe\u0301"}, "1"},
		{"FullwidthStored", types.FieldName, []string{"milk"}, "2"},
		{"FullwidthQuery", types.FieldName, []string{"Ｍｉｌｋ"}, "2"},
		{"CategoryAccent", types.FieldCategory, []string{"café"}, "1"},
		{"SKUFolded", types.FieldSKU, []string{"åbc-x1"}, "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := storage.FindItemsByField(ctx, tt.field, tt.tokens, 200)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, tt.want, rows[0].ItemID)
		})
	}

	// Display values are returned as stored
	rows, err := storage.FindItemsByField(ctx, types.FieldName, []string{"latte"}, 200)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CAFÉ LATTE", rows[0].Name)
	assert.Equal(t, "CAFÉ BAR", rows[0].CategoryName)
}

func TestFindItemsByField_EscapesWildcards(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)

	rows, err := storage.FindItemsByField(context.Background(), types.FieldName, []string{"%"}, 200)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFindItemsByField_UnknownField(t *testing.T) {
	storage := setupTestDB(t)
	_, err := storage.FindItemsByField(context.Background(), types.Field("vendor"), []string{"x"}, 10)
	assert.Error(t, err)
}

func TestFindCaseUpc(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)
	ctx := context.Background()

	rows, err := storage.FindCaseUpc(ctx, "10012345678902")
	require.NoError(t, err)
	require.Len(t, rows, 1, "team data for deleted items is excluded")

	row := rows[0]
	assert.Equal(t, "1", row.Item.ItemID)
	assert.Equal(t, "Organic Whole Milk", row.Item.Name)
	assert.Equal(t, "1-a", row.Item.VariationID)
	assert.Equal(t, "1", row.TeamData.ItemID)
	assert.Equal(t, 12, row.TeamData.CaseQuantity)
	assert.Equal(t, "Valley Farms", row.TeamData.Vendor)
	assert.Equal(t, "Keep refrigerated", row.TeamData.Notes)
	require.True(t, row.TeamData.CaseCost.Valid)
	assert.True(t, decimal.RequireFromString("23.88").Equal(row.TeamData.CaseCost.Decimal))

	// Exact match only
	rows, err = storage.FindCaseUpc(ctx, "1001234567890")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestItemHasTax(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)
	ctx := context.Background()

	has, err := storage.ItemHasTax(ctx, "1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = storage.ItemHasTax(ctx, "2")
	require.NoError(t, err)
	assert.False(t, has)

	// Replacing the tax set clears old entries
	require.NoError(t, storage.SetItemTaxes(ctx, "1", nil))
	has, err = storage.ItemHasTax(ctx, "1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGetPrimaryImage(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)
	ctx := context.Background()

	img, err := storage.GetPrimaryImage(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, "img-1", img.ID)

	img, err = storage.GetPrimaryImage(ctx, "2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, img)
}

func TestTransactionRollback(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertItem(ctx, &types.CatalogItem{ID: "9", Name: "Oat Milk"}))
	require.NoError(t, tx.Rollback())

	rows, err := storage.FindItemsByField(ctx, types.FieldName, []string{"oat"}, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	tx, err = storage.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertItem(ctx, &types.CatalogItem{ID: "9", Name: "Oat Milk"}))
	require.NoError(t, tx.UpsertVariation(ctx, &types.ItemVariation{ID: "9-a", ParentItemID: "9", SKU: "OAT-1"}))
	require.NoError(t, tx.Commit())

	rows, err = storage.FindItemsByField(ctx, types.FieldName, []string{"oat"}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "OAT-1", rows[0].SKU)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	seedCatalog(t, storage)

	status, err := storage.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, status.ItemsCount)
	assert.Equal(t, 4, status.VariationsCount)
	assert.Equal(t, 1, status.CategoriesCount)
	assert.Equal(t, 2, status.CaseUpcCount)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.MigrationsApplied)
}
