package storage

import (
	"context"
	"time"

	"github.com/dshills/catalogsearch/pkg/types"
)

// Repository is the read-only view of the catalog consumed by the search core.
// Every method excludes soft-deleted rows.
type Repository interface {
	// FindItemsByField returns rows whose field contains every token, capped at limit
	FindItemsByField(ctx context.Context, field types.Field, tokens []string, limit int) ([]ItemRow, error)

	// FindCaseUpc returns team-data rows whose case UPC equals value exactly
	FindCaseUpc(ctx context.Context, value string) ([]CaseUpcRow, error)

	ItemHasTax(ctx context.Context, itemID string) (bool, error)

	// GetPrimaryImage returns ErrNotFound when the item has no image
	GetPrimaryImage(ctx context.Context, itemID string) (*types.ImageRef, error)

	// Ready returns ErrUnavailable until the store can serve queries
	Ready(ctx context.Context) error
}

// Writer holds the write operations used by the catalog loader
type Writer interface {
	UpsertCategory(ctx context.Context, category *Category) error
	UpsertItem(ctx context.Context, item *types.CatalogItem) error
	UpsertVariation(ctx context.Context, variation *types.ItemVariation) error
	UpsertTeamData(ctx context.Context, data *types.TeamData) error
	SetItemTaxes(ctx context.Context, itemID string, taxIDs []string) error
	UpsertImage(ctx context.Context, itemID string, image types.ImageRef, primary bool) error
}

// Storage is the full catalog store
type Storage interface {
	Repository
	Writer

	GetStatus(ctx context.Context) (*CatalogStatus, error)

	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Writer
}

// Category is a catalog category row
type Category struct {
	ID        string
	Name      string
	IsDeleted bool
}

// ItemRow is one item/variation row returned by field retrieval
type ItemRow struct {
	ItemID       string
	VariationID  string
	Name         string
	SKU          string
	UPC          string
	CategoryID   string
	CategoryName string
	PriceAmount  *int64 // Minor currency units
}

// CaseUpcRow is a team-data row joined to its owning item
type CaseUpcRow struct {
	Item     ItemRow
	TeamData types.TeamData
}

// CatalogStatus contains statistics about the local catalog
type CatalogStatus struct {
	ItemsCount      int
	VariationsCount int
	CategoriesCount int
	CaseUpcCount    int
	SchemaVersion   string
	SizeMB          float64
	CheckedAt       time.Time
	Health          HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible bool
	MigrationsApplied  bool
}
