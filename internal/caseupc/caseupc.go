// Package caseupc resolves numeric queries against the case UPCs kept in
// the team-data overlay.
package caseupc

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/catalogsearch/internal/logger"
	"github.com/dshills/catalogsearch/internal/metrics"
	"github.com/dshills/catalogsearch/internal/retriever"
	"github.com/dshills/catalogsearch/internal/storage"
	"github.com/dshills/catalogsearch/internal/tokenizer"
	"github.com/dshills/catalogsearch/pkg/types"
)

// DefaultScore is assigned to every case-UPC hit
const DefaultScore = 100.0

// CaseFinder is the slice of the repository the resolver needs
type CaseFinder interface {
	FindCaseUpc(ctx context.Context, value string) ([]storage.CaseUpcRow, error)
}

// Config controls case-UPC resolution
type Config struct {
	ExcludeDiscontinued bool
	Score               float64
}

// DefaultConfig skips discontinued cases
func DefaultConfig() Config {
	return Config{ExcludeDiscontinued: true, Score: DefaultScore}
}

// Resolver looks up case UPCs
type Resolver struct {
	repo    CaseFinder
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger for skipped rows
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logger.OrNop(l) }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a resolver
func New(repo CaseFinder, cfg Config, opts ...Option) *Resolver {
	if cfg.Score <= 0 {
		cfg.Score = DefaultScore
	}
	r := &Resolver{repo: repo, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Applies reports whether a query should go through case-UPC resolution:
// barcode search must be enabled and the trimmed query all digits
func Applies(query string, fields types.FieldSet) bool {
	return fields.Has(types.FieldBarcode) && tokenizer.IsNumeric(strings.TrimSpace(query))
}

// Resolve returns case-UPC matches for an all-digit query, tagged
// MatchCaseUPC. Non-numeric queries return nothing without a lookup.
func (r *Resolver) Resolve(ctx context.Context, query string) ([]types.ScoredResult, error) {
	query = strings.TrimSpace(query)
	if !tokenizer.IsNumeric(query) {
		return nil, nil
	}

	rows, err := r.repo.FindCaseUpc(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("resolve case upc: %w", err)
	}

	log := logger.FromContext(ctx, r.logger)
	results := make([]types.ScoredResult, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if r.cfg.ExcludeDiscontinued && row.TeamData.Discontinued {
			continue
		}
		c, err := retriever.FromRow(row.Item, types.FieldBarcode)
		if err != nil {
			log.Warn("skipping malformed case upc row",
				zap.String("item_id", row.Item.ItemID),
				zap.String("case_upc", row.TeamData.CaseUPC),
				zap.Error(err))
			r.metrics.MalformedRow("caseupc")
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		c.Matched = 0
		c.MatchContext = row.TeamData.CaseUPC
		c.Case = &types.CaseInfo{
			CaseUPC:      row.TeamData.CaseUPC,
			CaseCost:     row.TeamData.CaseCost,
			Quantity:     row.TeamData.CaseQuantity,
			Vendor:       row.TeamData.Vendor,
			Discontinued: row.TeamData.Discontinued,
			Notes:        row.TeamData.Notes,
		}
		results = append(results, types.ScoredResult{
			Candidate: c,
			Score:     r.cfg.Score,
			MatchType: types.MatchCaseUPC,
		})
	}
	return results, nil
}
