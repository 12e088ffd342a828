package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/dshills/catalogsearch/internal/storage"
	"github.com/dshills/catalogsearch/internal/tokenizer"
	"github.com/dshills/catalogsearch/pkg/types"
)

// Snapshot is a full catalog export as read from disk
type Snapshot struct {
	Categories []CategoryRecord `json:"categories"`
	Items      []ItemRecord     `json:"items"`
	TeamData   []TeamDataRecord `json:"team_data"`
}

// CategoryRecord is one exported category
type CategoryRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDeleted bool   `json:"is_deleted"`
}

// ItemRecord is one exported item with its variations, taxes and image
type ItemRecord struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	CategoryID            string            `json:"category_id"`
	ReportingCategoryName string            `json:"reporting_category_name"`
	IsDeleted             bool              `json:"is_deleted"`
	Variations            []VariationRecord `json:"variations"`
	TaxIDs                []string          `json:"tax_ids"`
	Image                 *ImageRecord      `json:"image"`
}

// VariationRecord is one exported variation. PriceAmount is in minor units.
type VariationRecord struct {
	ID          string `json:"id"`
	SKU         string `json:"sku"`
	UPC         string `json:"upc"`
	PriceAmount *int64 `json:"price_amount"`
	Ordinal     int    `json:"ordinal"`
	IsDeleted   bool   `json:"is_deleted"`
}

// ImageRecord is an item's primary image
type ImageRecord struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// TeamDataRecord is one exported case/vendor overlay row
type TeamDataRecord struct {
	ItemID       string              `json:"item_id"`
	CaseUPC      string              `json:"case_upc"`
	CaseCost     decimal.NullDecimal `json:"case_cost"`
	CaseQuantity int                 `json:"case_quantity"`
	Vendor       string              `json:"vendor"`
	Discontinued bool                `json:"discontinued"`
	Notes        string              `json:"notes"`
}

// DecodeSnapshot reads a JSON snapshot
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return &snap, nil
}

var (
	errMissingID   = errors.New("missing id")
	errMissingName = errors.New("missing name")
)

func (c CategoryRecord) validate() error {
	if c.ID == "" {
		return errMissingID
	}
	return nil
}

func (c CategoryRecord) toCategory() *storage.Category {
	return &storage.Category{ID: c.ID, Name: c.Name, IsDeleted: c.IsDeleted}
}

// validate checks the item itself. Variations are checked separately so a
// bad variation does not reject its item.
func (it ItemRecord) validate() error {
	if it.ID == "" {
		return errMissingID
	}
	if it.Name == "" && !it.IsDeleted {
		return fmt.Errorf("item %s: %w", it.ID, errMissingName)
	}
	if it.Image != nil && (it.Image.ID == "" || it.Image.URL == "") {
		return fmt.Errorf("item %s: image needs id and url", it.ID)
	}
	return nil
}

func (it ItemRecord) toItem() *types.CatalogItem {
	return &types.CatalogItem{
		ID:           it.ID,
		Name:         it.Name,
		CategoryID:   it.CategoryID,
		CategoryName: it.ReportingCategoryName,
		IsDeleted:    it.IsDeleted,
	}
}

func (v VariationRecord) validate(itemID string) error {
	if v.ID == "" {
		return fmt.Errorf("item %s variation: %w", itemID, errMissingID)
	}
	if v.PriceAmount != nil && *v.PriceAmount < 0 {
		return fmt.Errorf("variation %s: negative price", v.ID)
	}
	return nil
}

func (v VariationRecord) toVariation(itemID string) *types.ItemVariation {
	return &types.ItemVariation{
		ID:           v.ID,
		ParentItemID: itemID,
		SKU:          v.SKU,
		UPC:          v.UPC,
		PriceAmount:  v.PriceAmount,
		Ordinal:      v.Ordinal,
		IsDeleted:    v.IsDeleted,
	}
}

func (t TeamDataRecord) validate() error {
	if t.ItemID == "" {
		return fmt.Errorf("team data: %w", errMissingID)
	}
	if t.CaseUPC != "" && !tokenizer.IsNumeric(t.CaseUPC) {
		return fmt.Errorf("team data %s: case upc %q is not numeric", t.ItemID, t.CaseUPC)
	}
	if t.CaseQuantity < 0 {
		return fmt.Errorf("team data %s: negative case quantity", t.ItemID)
	}
	if t.CaseCost.Valid && t.CaseCost.Decimal.IsNegative() {
		return fmt.Errorf("team data %s: negative case cost", t.ItemID)
	}
	return nil
}

func (t TeamDataRecord) toTeamData() *types.TeamData {
	return &types.TeamData{
		ItemID:       t.ItemID,
		CaseUPC:      t.CaseUPC,
		CaseCost:     t.CaseCost,
		CaseQuantity: t.CaseQuantity,
		Vendor:       t.Vendor,
		Discontinued: t.Discontinued,
		Notes:        t.Notes,
	}
}
