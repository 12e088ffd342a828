// Package types provides shared type definitions for the catalog search engine.
//
// This package defines the domain types that flow between the storage layer,
// the matching pipeline and the presentation-facing search entry points.
//
// # Catalog Types
//
// CatalogItem, ItemVariation and TeamData mirror the rows the item repository
// owns. The search core reads immutable snapshots of them and never mutates
// them:
//
//	item := types.CatalogItem{
//	    ID:           "1",
//	    Name:         "Organic Whole Milk",
//	    CategoryName: "Dairy",
//	}
//
// # Matching Types
//
// CandidateItem is the transient aggregate built during retrieval. Several
// retrieval passes for the same item id are merged into one candidate:
//
//	c := types.CandidateItem{ID: "1", Name: "Organic Whole Milk"}
//	c.Matched = c.Matched.With(types.FieldName)
//
// ScoredResult pairs a candidate with its relevance score and the match type
// that produced it. ResultItem is the presentation shape handed to callers,
// with prices converted from minor currency units to decimals.
//
// # Fields and Match Types
//
// Field enumerates the searchable axes (name, sku, barcode, category).
// MatchType adds the case_upc tag for the team-data side table, and carries a
// priority used to break ranking ties:
//
//	types.MatchBarcode.Priority() // 1
//	types.MatchCategory.Priority() // 4
package types
