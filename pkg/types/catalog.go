package types

import "github.com/shopspring/decimal"

// CatalogItem is a sellable item as stored in the local catalog
type CatalogItem struct {
	ID           string
	Name         string
	CategoryID   string
	CategoryName string // Reporting category override when present
	IsDeleted    bool
}

// ItemVariation is a priced, scannable variant of a CatalogItem
type ItemVariation struct {
	ID           string
	ParentItemID string
	SKU          string
	UPC          string
	PriceAmount  *int64 // Minor currency units, nil when the variation is variably priced
	Ordinal      int
	IsDeleted    bool
}

// TeamData is the vendor/case overlay maintained alongside an item
type TeamData struct {
	ItemID       string
	CaseUPC      string
	CaseCost     decimal.NullDecimal // Already in decimal vendor-cost units
	CaseQuantity int
	Vendor       string
	Discontinued bool
	Notes        string
}

// ImageRef references an item's image
type ImageRef struct {
	ID  string
	URL string
}

// PriceFromMinorUnits converts an integer minor-currency amount to a decimal.
// The second result is false when the amount is missing or not positive, in
// which case no price should be presented.
func PriceFromMinorUnits(amount *int64, exponent int32) (decimal.Decimal, bool) {
	if amount == nil || *amount <= 0 {
		return decimal.Zero, false
	}
	return decimal.New(*amount, -exponent), true
}
