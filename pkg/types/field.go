package types

import (
	"fmt"
	"strings"
)

// Field is a searchable catalog axis
type Field string

const (
	FieldName     Field = "name"
	FieldSKU      Field = "sku"
	FieldBarcode  Field = "barcode"
	FieldCategory Field = "category"
)

// AllFields lists the searchable fields in merge order
var AllFields = []Field{FieldName, FieldSKU, FieldBarcode, FieldCategory}

// ParseField converts a field name to a Field
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldName, FieldSKU, FieldBarcode, FieldCategory:
		return f, nil
	default:
		return "", fmt.Errorf("unknown search field %q", s)
	}
}

// MatchType returns the match tag a field produces
func (f Field) MatchType() MatchType {
	return MatchType(f)
}

// FieldSet is a small bit set of fields
type FieldSet uint8

func fieldBit(f Field) FieldSet {
	switch f {
	case FieldName:
		return 1 << 0
	case FieldSKU:
		return 1 << 1
	case FieldBarcode:
		return 1 << 2
	case FieldCategory:
		return 1 << 3
	}
	return 0
}

// With returns the set with f added
func (s FieldSet) With(f Field) FieldSet { return s | fieldBit(f) }

// Has reports whether f is in the set
func (s FieldSet) Has(f Field) bool { return s&fieldBit(f) != 0 }

// Union merges two sets
func (s FieldSet) Union(o FieldSet) FieldSet { return s | o }

// Fields lists the members in merge order
func (s FieldSet) Fields() []Field {
	out := make([]Field, 0, len(AllFields))
	for _, f := range AllFields {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Filters selects which fields a search may match on
type Filters struct {
	Name     bool `json:"name" yaml:"name"`
	SKU      bool `json:"sku" yaml:"sku"`
	Barcode  bool `json:"barcode" yaml:"barcode"`
	Category bool `json:"category" yaml:"category"`
}

// DefaultFilters enables everything except category, which is too broad an
// axis for large catalogs
func DefaultFilters() Filters {
	return Filters{Name: true, SKU: true, Barcode: true}
}

// FieldSet converts the filters to a FieldSet
func (f Filters) FieldSet() FieldSet {
	var s FieldSet
	if f.Name {
		s = s.With(FieldName)
	}
	if f.SKU {
		s = s.With(FieldSKU)
	}
	if f.Barcode {
		s = s.With(FieldBarcode)
	}
	if f.Category {
		s = s.With(FieldCategory)
	}
	return s
}

// FiltersFromSet converts a FieldSet to filters
func FiltersFromSet(s FieldSet) Filters {
	return Filters{
		Name:     s.Has(FieldName),
		SKU:      s.Has(FieldSKU),
		Barcode:  s.Has(FieldBarcode),
		Category: s.Has(FieldCategory),
	}
}

// ParseFilters builds filters from field names such as "name,sku"
func ParseFilters(names []string) (Filters, error) {
	var set FieldSet
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			f, err := ParseField(part)
			if err != nil {
				return Filters{}, err
			}
			set = set.With(f)
		}
	}
	return FiltersFromSet(set), nil
}

// IsEmpty reports whether no field is enabled
func (f Filters) IsEmpty() bool {
	return f.FieldSet() == 0
}

// String renders the filters in a stable form, used for cache keys
func (f Filters) String() string {
	parts := make([]string, 0, 4)
	for _, fld := range f.FieldSet().Fields() {
		parts = append(parts, string(fld))
	}
	return strings.Join(parts, ",")
}

// MatchType tags which source produced a result's winning score
type MatchType string

const (
	MatchName     MatchType = "name"
	MatchSKU      MatchType = "sku"
	MatchBarcode  MatchType = "barcode"
	MatchUPC      MatchType = "upc"
	MatchCategory MatchType = "category"
	MatchCaseUPC  MatchType = "case_upc"
)

// Priority orders match types for tie-breaking; lower is better
func (m MatchType) Priority() int {
	switch m {
	case MatchBarcode, MatchUPC:
		return 1
	case MatchSKU:
		return 2
	case MatchName:
		return 3
	case MatchCategory:
		return 4
	default:
		return 5
	}
}

// Valid reports whether m is a known match type
func (m MatchType) Valid() bool {
	switch m {
	case MatchName, MatchSKU, MatchBarcode, MatchUPC, MatchCategory, MatchCaseUPC:
		return true
	}
	return false
}
