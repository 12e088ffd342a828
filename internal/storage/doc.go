// Package storage provides the SQLite-backed catalog store the search engine
// reads from.
//
// The store manages:
//   - Categories (with soft delete)
//   - Catalog items, including a reporting-category override
//   - Item variations (SKU, UPC, price in minor currency units)
//   - Item taxes and images
//   - Team data: case UPCs, case cost, vendor and discontinued flags
//
// # Read Side
//
// The search core depends only on Repository:
//
//	rows, err := store.FindItemsByField(ctx, types.FieldName, []string{"milk"}, 200)
//	caseRows, err := store.FindCaseUpc(ctx, "10012345678902")
//
// Every read excludes rows with is_deleted = 1. Query failures wrap
// types.ErrDatabase; reads against a closed or unmigrated store return
// ErrUnavailable, which wraps types.ErrRepositoryUnavailable.
//
// # Write Side
//
// The catalog loader is the single writer. It batches writes in
// transactions:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.UpsertItem(ctx, &types.CatalogItem{ID: "1", Name: "Organic Whole Milk"})
//	_ = tx.UpsertVariation(ctx, &types.ItemVariation{ID: "1-v", ParentItemID: "1", UPC: "012345678905"})
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// WAL journaling lets readers continue while a batch commits.
//
// # Drivers
//
// The default build uses modernc.org/sqlite (pure Go). Build with the
// cgo_sqlite tag to use github.com/mattn/go-sqlite3 instead.
package storage
