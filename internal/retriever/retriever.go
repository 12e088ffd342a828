// Package retriever builds the candidate set for a query by running one
// repository lookup per enabled field and merging the rows by item id.
package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/catalogsearch/internal/logger"
	"github.com/dshills/catalogsearch/internal/metrics"
	"github.com/dshills/catalogsearch/internal/storage"
	"github.com/dshills/catalogsearch/pkg/types"
)

// DefaultFieldLimit caps each per-field lookup
const DefaultFieldLimit = 200

// ItemFinder is the slice of the repository the retriever needs
type ItemFinder interface {
	FindItemsByField(ctx context.Context, field types.Field, tokens []string, limit int) ([]storage.ItemRow, error)
}

// Config controls retrieval
type Config struct {
	FieldLimit int // Per-field row cap (default DefaultFieldLimit)
}

// Retriever fans out field lookups and merges their rows
type Retriever struct {
	repo    ItemFinder
	limit   int
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Retriever
type Option func(*Retriever)

// WithLogger sets the logger for skipped rows
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = logger.OrNop(l) }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

// New creates a retriever over repo
func New(repo ItemFinder, cfg Config, opts ...Option) *Retriever {
	r := &Retriever{
		repo:   repo,
		limit:  cfg.FieldLimit,
		logger: zap.NewNop(),
	}
	if r.limit <= 0 {
		r.limit = DefaultFieldLimit
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns one candidate per item found by any enabled field.
// Every field lookup requires all tokens. Candidates keep first-seen order,
// walking fields as name, sku, barcode, category. A repository failure on
// any field fails the whole retrieval.
func (r *Retriever) Retrieve(ctx context.Context, tokens []string, fields types.FieldSet) ([]types.CandidateItem, error) {
	enabled := fields.Fields()
	if len(tokens) == 0 || len(enabled) == 0 {
		return nil, nil
	}

	perField := make([][]storage.ItemRow, len(enabled))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range enabled {
		g.Go(func() error {
			rows, err := r.repo.FindItemsByField(gctx, f, tokens, r.limit)
			if err != nil {
				return fmt.Errorf("retrieve %s: %w", f, err)
			}
			perField[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx, r.logger)
	byID := make(map[string]int)
	candidates := make([]types.CandidateItem, 0)
	for i, f := range enabled {
		r.metrics.AddCandidates(string(f), len(perField[i]))
		for _, row := range perField[i] {
			c, err := FromRow(row, f)
			if err != nil {
				log.Warn("skipping malformed row",
					zap.String("field", string(f)),
					zap.String("item_id", row.ItemID),
					zap.Error(err))
				r.metrics.MalformedRow("retriever")
				continue
			}
			if idx, ok := byID[c.ID]; ok {
				candidates[idx].Merge(c)
				continue
			}
			byID[c.ID] = len(candidates)
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// FromRow converts a repository row found through field into a candidate.
// Rows without an id or a name are malformed.
func FromRow(row storage.ItemRow, field types.Field) (types.CandidateItem, error) {
	switch {
	case row.ItemID == "":
		return types.CandidateItem{}, fmt.Errorf("%w: %w", types.ErrMalformedRow, types.ErrMissingItemID)
	case row.Name == "":
		return types.CandidateItem{}, fmt.Errorf("%w: %w", types.ErrMalformedRow, types.ErrMissingItemName)
	}

	c := types.CandidateItem{
		ID:           row.ItemID,
		VariationID:  row.VariationID,
		Name:         row.Name,
		SKU:          row.SKU,
		Barcode:      row.UPC,
		CategoryID:   row.CategoryID,
		CategoryName: row.CategoryName,
		Matched:      types.FieldSet(0).With(field),
	}
	if row.PriceAmount != nil {
		amount := *row.PriceAmount
		c.PriceAmount = &amount
	}
	c.MatchContext = c.FieldValue(field)
	return c, nil
}
