package types

import "errors"

// Domain errors shared by the search pipeline
var (
	// ErrRepositoryUnavailable is returned when the item repository cannot be queried
	// (not yet initialized, closed, or unreachable). It is distinct from "no results".
	ErrRepositoryUnavailable = errors.New("item repository unavailable")

	// ErrDatabase wraps a failed repository query
	ErrDatabase = errors.New("database error")

	// ErrMalformedRow marks a repository row that cannot become a candidate
	ErrMalformedRow = errors.New("malformed row")

	// Result validation errors
	ErrMissingItemID    = errors.New("item id is required")
	ErrMissingItemName  = errors.New("item name is required")
	ErrNegativeScore    = errors.New("score must be >= 0")
	ErrUnknownMatchType = errors.New("unknown match type")
)
