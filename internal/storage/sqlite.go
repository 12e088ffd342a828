package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dshills/catalogsearch/internal/tokenizer"
	"github.com/dshills/catalogsearch/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the store is closed or not migrated
	ErrUnavailable = fmt.Errorf("sqlite storage: %w", types.ErrRepositoryUnavailable)
)

var _ Storage = (*SQLiteStorage)(nil)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	closed atomic.Bool
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode so the loader does not block readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and matches
	// SQLite's single-writer model
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage opens (or creates) a catalog database and migrates it
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection. Later reads report ErrUnavailable.
func (s *SQLiteStorage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Ready reports whether the store can serve queries
func (s *SQLiteStorage) Ready(ctx context.Context) error {
	if s.closed.Load() {
		return ErrUnavailable
	}
	v, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if v.String() != CurrentSchemaVersion {
		return fmt.Errorf("%w: schema version %s, want %s", ErrUnavailable, v, CurrentSchemaVersion)
	}
	return nil
}

func (s *SQLiteStorage) checkOpen() error {
	if s.closed.Load() {
		return ErrUnavailable
	}
	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// Read operations

// Normalized column expressions per searchable field. Category prefers the
// reporting override over the category row's name.
var fieldColumns = map[types.Field]string{
	types.FieldName:     "i.name_norm",
	types.FieldSKU:      "v.sku_norm",
	types.FieldBarcode:  "v.upc_norm",
	types.FieldCategory: "COALESCE(NULLIF(i.reporting_category_norm, ''), c.name_norm)",
}

// firstVariationJoin attaches an item's first live variation
const firstVariationJoin = `
		LEFT JOIN item_variations v ON v.id = (
			SELECT v2.id FROM item_variations v2
			WHERE v2.item_id = i.id AND v2.is_deleted = 0
			ORDER BY v2.ordinal, v2.id
			LIMIT 1
		)`

// everyVariationJoin yields one row per live variation
const everyVariationJoin = `
		JOIN item_variations v ON v.item_id = i.id AND v.is_deleted = 0`

const itemRowColumns = `
		i.id, COALESCE(i.name, ''), COALESCE(v.id, ''), COALESCE(v.sku, ''), COALESCE(v.upc, ''),
		COALESCE(i.category_id, ''), COALESCE(NULLIF(i.reporting_category_name, ''), c.name, ''),
		v.price_amount`

// FindItemsByField returns items whose field contains every token.
// Containment subsumes the exact and prefix strategies, so one LIKE per token
// is enough for candidate retrieval; the scorer separates them later.
// Tokens and stored values are both compared in tokenizer.Normalize form.
func (s *SQLiteStorage) FindItemsByField(ctx context.Context, field types.Field, tokens []string, limit int) ([]ItemRow, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	column, ok := fieldColumns[field]
	if !ok {
		return nil, fmt.Errorf("unsupported search field %q", field)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}

	join := firstVariationJoin
	if field == types.FieldSKU || field == types.FieldBarcode {
		join = everyVariationJoin
	}

	where := make([]string, 0, len(tokens))
	args := make([]interface{}, 0, len(tokens)+1)
	for _, tok := range tokens {
		where = append(where, column+" LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(tokenizer.Normalize(tok))+"%")
	}
	args = append(args, limit)

	query := `SELECT` + itemRowColumns + `
		FROM catalog_items i` + join + `
		LEFT JOIN categories c ON c.id = i.category_id AND c.is_deleted = 0
		WHERE i.is_deleted = 0 AND ` + strings.Join(where, " AND ") + `
		ORDER BY i.name_norm, i.id, v.ordinal
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: find items by %s: %w", types.ErrDatabase, field, err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]ItemRow, 0)
	for rows.Next() {
		row, err := scanItemRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s row: %w", types.ErrDatabase, field, err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: find items by %s: %w", types.ErrDatabase, field, err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItemRow(r rowScanner, extra ...interface{}) (ItemRow, error) {
	var row ItemRow
	var price sql.NullInt64
	dest := []interface{}{
		&row.ItemID, &row.Name, &row.VariationID, &row.SKU, &row.UPC,
		&row.CategoryID, &row.CategoryName, &price,
	}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return ItemRow{}, err
	}
	if price.Valid {
		amount := price.Int64
		row.PriceAmount = &amount
	}
	return row, nil
}

// FindCaseUpc returns team-data rows with an exactly matching case UPC.
// Discontinued rows are returned; callers decide whether to keep them.
func (s *SQLiteStorage) FindCaseUpc(ctx context.Context, value string) ([]CaseUpcRow, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `SELECT` + itemRowColumns + `,
		t.case_upc, t.case_cost, COALESCE(t.case_quantity, 0), COALESCE(t.vendor, ''),
		t.discontinued, COALESCE(t.notes, '')
		FROM team_data t
		JOIN catalog_items i ON i.id = t.item_id AND i.is_deleted = 0` + firstVariationJoin + `
		LEFT JOIN categories c ON c.id = i.category_id AND c.is_deleted = 0
		WHERE t.case_upc = ?
		ORDER BY i.id`

	rows, err := s.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("%w: find case upc: %w", types.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]CaseUpcRow, 0)
	for rows.Next() {
		var r CaseUpcRow
		item, err := scanItemRow(rows,
			&r.TeamData.CaseUPC, &r.TeamData.CaseCost, &r.TeamData.CaseQuantity,
			&r.TeamData.Vendor, &r.TeamData.Discontinued, &r.TeamData.Notes)
		if err != nil {
			return nil, fmt.Errorf("%w: scan case upc row: %w", types.ErrDatabase, err)
		}
		r.Item = item
		r.TeamData.ItemID = item.ItemID
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: find case upc: %w", types.ErrDatabase, err)
	}
	return results, nil
}

// ItemHasTax reports whether any tax applies to the item
func (s *SQLiteStorage) ItemHasTax(ctx context.Context, itemID string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var has bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM item_taxes WHERE item_id = ?)", itemID).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("%w: item taxes: %w", types.ErrDatabase, err)
	}
	return has, nil
}

// GetPrimaryImage returns the item's primary image, falling back to any
// image. It returns ErrNotFound when the item has none.
func (s *SQLiteStorage) GetPrimaryImage(ctx context.Context, itemID string) (*types.ImageRef, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var img types.ImageRef
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url FROM item_images
		WHERE item_id = ?
		ORDER BY is_primary DESC, id
		LIMIT 1
	`, itemID).Scan(&img.ID, &img.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: primary image: %w", types.ErrDatabase, err)
	}
	return &img, nil
}

// escapeLike escapes LIKE wildcards so tokens match literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Write operations

func upsertCategoryWithQuerier(ctx context.Context, q querier, category *Category) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO categories (id, name, name_norm, is_deleted, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_norm = excluded.name_norm,
			is_deleted = excluded.is_deleted,
			updated_at = excluded.updated_at
	`, category.ID, category.Name, searchKey(category.Name), category.IsDeleted, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertCategory(ctx context.Context, category *Category) error {
	return upsertCategoryWithQuerier(ctx, s.db, category)
}

func upsertItemWithQuerier(ctx context.Context, q querier, item *types.CatalogItem) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO catalog_items (id, name, name_norm, category_id, reporting_category_name,
			reporting_category_norm, is_deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_norm = excluded.name_norm,
			category_id = excluded.category_id,
			reporting_category_name = excluded.reporting_category_name,
			reporting_category_norm = excluded.reporting_category_norm,
			is_deleted = excluded.is_deleted,
			updated_at = excluded.updated_at
	`, item.ID, item.Name, searchKey(item.Name), nullString(item.CategoryID),
		nullString(item.CategoryName), searchKey(item.CategoryName), item.IsDeleted, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertItem(ctx context.Context, item *types.CatalogItem) error {
	return upsertItemWithQuerier(ctx, s.db, item)
}

func upsertVariationWithQuerier(ctx context.Context, q querier, v *types.ItemVariation) error {
	var price interface{}
	if v.PriceAmount != nil {
		price = *v.PriceAmount
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO item_variations (id, item_id, sku, sku_norm, upc, upc_norm, price_amount, ordinal, is_deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			item_id = excluded.item_id,
			sku = excluded.sku,
			sku_norm = excluded.sku_norm,
			upc = excluded.upc,
			upc_norm = excluded.upc_norm,
			price_amount = excluded.price_amount,
			ordinal = excluded.ordinal,
			is_deleted = excluded.is_deleted,
			updated_at = excluded.updated_at
	`, v.ID, v.ParentItemID, nullString(v.SKU), searchKey(v.SKU), nullString(v.UPC), searchKey(v.UPC),
		price, v.Ordinal, v.IsDeleted, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert variation: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertVariation(ctx context.Context, v *types.ItemVariation) error {
	return upsertVariationWithQuerier(ctx, s.db, v)
}

func upsertTeamDataWithQuerier(ctx context.Context, q querier, d *types.TeamData) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO team_data (item_id, case_upc, case_cost, case_quantity, vendor, discontinued, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			case_upc = excluded.case_upc,
			case_cost = excluded.case_cost,
			case_quantity = excluded.case_quantity,
			vendor = excluded.vendor,
			discontinued = excluded.discontinued,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`, d.ItemID, nullString(d.CaseUPC), d.CaseCost, d.CaseQuantity, nullString(d.Vendor),
		d.Discontinued, nullString(d.Notes), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert team data: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertTeamData(ctx context.Context, d *types.TeamData) error {
	return upsertTeamDataWithQuerier(ctx, s.db, d)
}

func setItemTaxesWithQuerier(ctx context.Context, q querier, itemID string, taxIDs []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM item_taxes WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to clear item taxes: %w", err)
	}
	for _, taxID := range taxIDs {
		_, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO item_taxes (item_id, tax_id) VALUES (?, ?)`, itemID, taxID)
		if err != nil {
			return fmt.Errorf("failed to insert item tax: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) SetItemTaxes(ctx context.Context, itemID string, taxIDs []string) error {
	return setItemTaxesWithQuerier(ctx, s.db, itemID, taxIDs)
}

func upsertImageWithQuerier(ctx context.Context, q querier, itemID string, image types.ImageRef, primary bool) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO item_images (id, item_id, url, is_primary, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			item_id = excluded.item_id,
			url = excluded.url,
			is_primary = excluded.is_primary,
			updated_at = excluded.updated_at
	`, image.ID, itemID, image.URL, primary, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert image: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertImage(ctx context.Context, itemID string, image types.ImageRef, primary bool) error {
	return upsertImageWithQuerier(ctx, s.db, itemID, image, primary)
}

func (t *sqliteTx) UpsertCategory(ctx context.Context, category *Category) error {
	return upsertCategoryWithQuerier(ctx, t.tx, category)
}

func (t *sqliteTx) UpsertItem(ctx context.Context, item *types.CatalogItem) error {
	return upsertItemWithQuerier(ctx, t.tx, item)
}

func (t *sqliteTx) UpsertVariation(ctx context.Context, v *types.ItemVariation) error {
	return upsertVariationWithQuerier(ctx, t.tx, v)
}

func (t *sqliteTx) UpsertTeamData(ctx context.Context, d *types.TeamData) error {
	return upsertTeamDataWithQuerier(ctx, t.tx, d)
}

func (t *sqliteTx) SetItemTaxes(ctx context.Context, itemID string, taxIDs []string) error {
	return setItemTaxesWithQuerier(ctx, t.tx, itemID, taxIDs)
}

func (t *sqliteTx) UpsertImage(ctx context.Context, itemID string, image types.ImageRef, primary bool) error {
	return upsertImageWithQuerier(ctx, t.tx, itemID, image, primary)
}

// Status operations

// GetStatus reports catalog counts and database size
func (s *SQLiteStorage) GetStatus(ctx context.Context) (*CatalogStatus, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	status := &CatalogStatus{CheckedAt: time.Now()}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM catalog_items WHERE is_deleted = 0", &status.ItemsCount},
		{`SELECT COUNT(*) FROM item_variations v
		  JOIN catalog_items i ON i.id = v.item_id AND i.is_deleted = 0
		  WHERE v.is_deleted = 0`, &status.VariationsCount},
		{"SELECT COUNT(*) FROM categories WHERE is_deleted = 0", &status.CategoriesCount},
		{`SELECT COUNT(*) FROM team_data WHERE case_upc IS NOT NULL AND case_upc != ''`, &status.CaseUpcCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("%w: status: %w", types.ErrDatabase, err)
		}
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	v, err := SchemaVersion(ctx, s.db)
	if err == nil {
		status.SchemaVersion = v.String()
	}
	status.Health = HealthStatus{
		DatabaseAccessible: true,
		MigrationsApplied:  status.SchemaVersion == CurrentSchemaVersion,
	}
	return status, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// searchKey is the stored form of a searchable value
func searchKey(s string) sql.NullString {
	return nullString(tokenizer.Normalize(s))
}
