package types

import "github.com/shopspring/decimal"

// CandidateItem is the in-memory aggregate built during retrieval.
// Passes that find the same item id are merged into one candidate.
type CandidateItem struct {
	ID           string
	VariationID  string
	Name         string
	SKU          string
	Barcode      string
	CategoryID   string
	CategoryName string
	PriceAmount  *int64 // Minor currency units
	Image        *ImageRef
	HasTax       bool

	// Matched records which retrieval passes found the item
	Matched      FieldSet
	MatchContext string

	// Case is set only for candidates produced by the case-UPC side table
	Case *CaseInfo
}

// FieldValue returns the candidate's value for a searchable field
func (c *CandidateItem) FieldValue(f Field) string {
	switch f {
	case FieldName:
		return c.Name
	case FieldSKU:
		return c.SKU
	case FieldBarcode:
		return c.Barcode
	case FieldCategory:
		return c.CategoryName
	}
	return ""
}

// Merge folds another pass's view of the same item into c.
// The first recorded non-empty value wins.
func (c *CandidateItem) Merge(o CandidateItem) {
	if c.VariationID == "" {
		c.VariationID = o.VariationID
	}
	if c.Name == "" {
		c.Name = o.Name
	}
	if c.SKU == "" {
		c.SKU = o.SKU
	}
	if c.Barcode == "" {
		c.Barcode = o.Barcode
	}
	if c.CategoryID == "" {
		c.CategoryID = o.CategoryID
	}
	if c.CategoryName == "" {
		c.CategoryName = o.CategoryName
	}
	if c.PriceAmount == nil && o.PriceAmount != nil {
		amount := *o.PriceAmount
		c.PriceAmount = &amount
	}
	if c.Image == nil {
		c.Image = o.Image
	}
	if c.MatchContext == "" {
		c.MatchContext = o.MatchContext
	}
	c.HasTax = c.HasTax || o.HasTax
	c.Matched = c.Matched.Union(o.Matched)
}

// CaseInfo carries case-UPC metadata from the team-data overlay
type CaseInfo struct {
	CaseUPC      string
	CaseCost     decimal.NullDecimal
	Quantity     int
	Vendor       string
	Discontinued bool
	Notes        string
}

// ScoredResult is a candidate with its relevance score
type ScoredResult struct {
	Candidate CandidateItem
	Score     float64
	MatchType MatchType
}

// Validate checks a scored result before it is handed to callers
func (r *ScoredResult) Validate() error {
	if r.Candidate.ID == "" {
		return ErrMissingItemID
	}
	if r.Candidate.Name == "" {
		return ErrMissingItemName
	}
	if r.Score < 0 {
		return ErrNegativeScore
	}
	if !r.MatchType.Valid() {
		return ErrUnknownMatchType
	}
	return nil
}

// ResultItem is the presentation shape of a search hit
type ResultItem struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	SKU           string           `json:"sku,omitempty"`
	Barcode       string           `json:"barcode,omitempty"`
	CategoryName  string           `json:"category_name,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	MatchType     MatchType        `json:"match_type"`
	MatchContext  string           `json:"match_context,omitempty"`
	Score         float64          `json:"score"`
	HasTax        bool             `json:"has_tax"`
	ImageURL      string           `json:"image_url,omitempty"`
	IsFromCaseUPC bool             `json:"is_from_case_upc"`
	Case          *CaseDetails     `json:"case,omitempty"`
}

// CaseDetails is the presentation shape of CaseInfo
type CaseDetails struct {
	CaseUPC  string `json:"case_upc"`
	Quantity int    `json:"quantity,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// ToResultItem converts a scored result to its presentation shape.
// exponent is the currency's minor unit exponent (2 for cents).
func (r *ScoredResult) ToResultItem(exponent int32) ResultItem {
	c := r.Candidate
	item := ResultItem{
		ID:            c.ID,
		Name:          c.Name,
		SKU:           c.SKU,
		Barcode:       c.Barcode,
		CategoryName:  c.CategoryName,
		MatchType:     r.MatchType,
		MatchContext:  c.MatchContext,
		Score:         r.Score,
		HasTax:        c.HasTax,
		IsFromCaseUPC: c.Case != nil,
	}
	if c.Image != nil {
		item.ImageURL = c.Image.URL
	}

	if c.Case != nil {
		// Case cost is already decimal; minor-unit conversion does not apply
		if c.Case.CaseCost.Valid && c.Case.CaseCost.Decimal.IsPositive() {
			price := c.Case.CaseCost.Decimal
			item.Price = &price
		}
		item.Case = &CaseDetails{
			CaseUPC:  c.Case.CaseUPC,
			Quantity: c.Case.Quantity,
			Vendor:   c.Case.Vendor,
			Notes:    c.Case.Notes,
		}
		return item
	}

	if price, ok := PriceFromMinorUnits(c.PriceAmount, exponent); ok {
		item.Price = &price
	}
	return item
}
