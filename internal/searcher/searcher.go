package searcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/catalogsearch/internal/caseupc"
	"github.com/dshills/catalogsearch/internal/logger"
	"github.com/dshills/catalogsearch/internal/metrics"
	"github.com/dshills/catalogsearch/internal/ranker"
	"github.com/dshills/catalogsearch/internal/retriever"
	"github.com/dshills/catalogsearch/internal/scorer"
	"github.com/dshills/catalogsearch/internal/storage"
	"github.com/dshills/catalogsearch/internal/tokenizer"
	"github.com/dshills/catalogsearch/pkg/types"
)

// Search modes, used as metric labels
const (
	ModeBatch     = "batch"
	ModeDebounced = "debounced"
)

// Defaults applied by New and validateRequest
const (
	DefaultMinQueryLength    = 2
	DefaultResultLimit       = 50
	MaxResultLimit           = 500
	DefaultCacheSize         = 1000
	DefaultCacheTTL          = 5 * time.Minute
	DefaultEnrichConcurrency = 8
	DefaultMinorUnitExponent = 2
)

// Config holds the orchestrator's tunables
type Config struct {
	MinQueryLength    int
	MinScore          float64
	ResultLimit       int
	FieldLimit        int
	CacheSize         int // 0 uses DefaultCacheSize, negative disables caching
	CacheTTL          time.Duration
	EnrichConcurrency int
	MinorUnitExponent int32

	Ready   RetryConfig
	Scoring scorer.Config
	CaseUPC caseupc.Config
	Delay   DelayFunc
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MinQueryLength:    DefaultMinQueryLength,
		MinScore:          ranker.DefaultMinScore,
		ResultLimit:       DefaultResultLimit,
		FieldLimit:        retriever.DefaultFieldLimit,
		CacheSize:         DefaultCacheSize,
		CacheTTL:          DefaultCacheTTL,
		EnrichConcurrency: DefaultEnrichConcurrency,
		MinorUnitExponent: DefaultMinorUnitExponent,
		Ready:             DefaultRetryConfig(),
		Scoring:           scorer.DefaultConfig(),
		CaseUPC:           caseupc.DefaultConfig(),
		Delay:             DefaultDelay(),
	}
}

// Request contains parameters for a search operation
type Request struct {
	Query   string
	Filters types.Filters
	Limit   int // 0 uses the configured result limit
}

// Response contains search results and metadata
type Response struct {
	Query        string
	Results      []types.ScoredResult
	TotalMatches int // Results that passed the threshold, before truncation
	Candidates   int
	CaseResults  int
	Duration     time.Duration
	CacheHit     bool
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher coordinates retrieval, scoring, ranking and case-UPC lookups
type Searcher struct {
	repo      storage.Repository
	cfg       Config
	retriever *retriever.Retriever
	resolver  *caseupc.Resolver
	scorer    *scorer.Scorer
	logger    *zap.Logger
	metrics   *metrics.Metrics

	cache   *lru.Cache[uint64, *cacheEntry]
	cacheMu sync.RWMutex
}

// Option configures a Searcher
type Option func(*Searcher)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Searcher) { s.logger = logger.OrNop(l) }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) { s.metrics = m }
}

// New creates a Searcher over repo. Zero config values take their defaults.
func New(repo storage.Repository, cfg Config, opts ...Option) (*Searcher, error) {
	applyDefaults(&cfg)
	if err := cfg.Scoring.Validate(); err != nil {
		return nil, err
	}

	s := &Searcher{
		repo:   repo,
		cfg:    cfg,
		scorer: scorer.New(cfg.Scoring),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.retriever = retriever.New(repo, retriever.Config{FieldLimit: cfg.FieldLimit},
		retriever.WithLogger(s.logger), retriever.WithMetrics(s.metrics))
	s.resolver = caseupc.New(repo, cfg.CaseUPC,
		caseupc.WithLogger(s.logger), caseupc.WithMetrics(s.metrics))

	if cfg.CacheSize > 0 {
		cache, err := lru.New[uint64, *cacheEntry](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = DefaultMinQueryLength
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = DefaultResultLimit
	}
	if cfg.FieldLimit <= 0 {
		cfg.FieldLimit = retriever.DefaultFieldLimit
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = DefaultEnrichConcurrency
	}
	if cfg.MinorUnitExponent <= 0 {
		cfg.MinorUnitExponent = DefaultMinorUnitExponent
	}
	if cfg.Ready.MaxAttempts <= 0 {
		cfg.Ready = DefaultRetryConfig()
	}
	if cfg.Scoring == (scorer.Config{}) {
		cfg.Scoring = scorer.DefaultConfig()
	}
	if cfg.Delay == nil {
		cfg.Delay = DefaultDelay()
	}
}

// Config returns the effective configuration
func (s *Searcher) Config() Config {
	return s.cfg
}

// Search runs a batch search to completion. Queries that are empty or
// shorter than the minimum length return an empty response without touching
// the repository. An unready repository yields ErrRepositoryUnavailable,
// which callers must keep distinct from an empty result.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := s.run(ctx, req)
	s.metrics.ObserveSearch(ModeBatch, outcomeOf(resp, err), time.Since(start))
	return resp, err
}

// run is the pipeline shared by batch searches and sessions
func (s *Searcher) run(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()
	log := logger.FromContext(ctx, s.logger)

	if !s.validateRequest(&req) {
		return &Response{Query: req.Query, Results: []types.ScoredResult{}}, nil
	}
	fields := req.Filters.FieldSet()

	if err := s.waitReady(ctx); err != nil {
		log.Error("repository not ready", zap.Error(err))
		return nil, err
	}

	key := computeQueryHash(req)
	if cached := s.checkCache(key); cached != nil {
		s.metrics.CacheResult(true)
		cached.CacheHit = true
		cached.Duration = time.Since(startTime)
		return cached, nil
	}
	s.metrics.CacheResult(false)

	normalized := tokenizer.Normalize(req.Query)
	tokens := tokenizer.Tokenize(req.Query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []types.CandidateItem
	var caseResults []types.ScoredResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		candidates, err = s.retriever.Retrieve(gctx, tokens, fields)
		return err
	})
	if caseupc.Applies(req.Query, fields) {
		g.Go(func() error {
			var err error
			caseResults, err = s.resolver.Resolve(gctx, req.Query)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		return nil, fmt.Errorf("search %q: %w", req.Query, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scored := s.validResults(log, "scorer", s.scorer.ScoreAll(candidates, normalized, tokens, fields))
	caseResults = s.validResults(log, "caseupc", caseResults)
	ranked, total := ranker.Rank(scored, ranker.Options{MinScore: s.cfg.MinScore, Limit: req.Limit})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, appended := mergeCaseResults(ranked, caseResults, s.cfg.MinScore)
	s.enrich(ctx, results)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response := &Response{
		Query:        req.Query,
		Results:      results,
		TotalMatches: total + appended,
		Candidates:   len(candidates),
		CaseResults:  appended,
		Duration:     time.Since(startTime),
	}
	s.storeInCache(key, response)
	return response, nil
}

// validateRequest trims the query and fills defaults. It returns false when
// the request cannot match anything and the repository should not be asked.
func (s *Searcher) validateRequest(req *Request) bool {
	req.Query = strings.TrimSpace(req.Query)
	if req.Limit <= 0 {
		req.Limit = s.cfg.ResultLimit
	}
	if req.Limit > MaxResultLimit {
		req.Limit = MaxResultLimit
	}
	if req.Query == "" || utf8.RuneCountInString(req.Query) < s.cfg.MinQueryLength {
		return false
	}
	return !req.Filters.IsEmpty()
}

// waitReady checks repository readiness with backoff
func (s *Searcher) waitReady(ctx context.Context) error {
	_, err := retryWithBackoff(ctx, s.cfg.Ready, func() (struct{}, error) {
		return struct{}{}, s.repo.Ready(ctx)
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, types.ErrRepositoryUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrRepositoryUnavailable, err)
}

// validResults drops results that fail validation, logging each one
func (s *Searcher) validResults(log *zap.Logger, source string, results []types.ScoredResult) []types.ScoredResult {
	kept := results[:0]
	for i := range results {
		if err := results[i].Validate(); err != nil {
			log.Warn("dropping invalid result",
				zap.String("source", source),
				zap.String("item_id", results[i].Candidate.ID),
				zap.Error(err))
			s.metrics.MalformedRow(source)
			continue
		}
		kept = append(kept, results[i])
	}
	return kept
}

// mergeCaseResults appends case-UPC results for items not already ranked.
// A primary match always wins over a case-UPC match for the same item, and
// case results below minScore are dropped like any other.
func mergeCaseResults(ranked, cases []types.ScoredResult, minScore float64) ([]types.ScoredResult, int) {
	if len(cases) == 0 {
		return ranked, 0
	}
	seen := make(map[string]struct{}, len(ranked)+len(cases))
	for _, r := range ranked {
		seen[r.Candidate.ID] = struct{}{}
	}
	appended := 0
	for _, c := range cases {
		if c.Score < minScore {
			continue
		}
		if _, dup := seen[c.Candidate.ID]; dup {
			continue
		}
		seen[c.Candidate.ID] = struct{}{}
		ranked = append(ranked, c)
		appended++
	}
	return ranked, appended
}

// enrich fills tax and image details for the final results. Failures are
// logged and leave the fields empty.
func (s *Searcher) enrich(ctx context.Context, results []types.ScoredResult) {
	if len(results) == 0 {
		return
	}
	log := logger.FromContext(ctx, s.logger)

	var g errgroup.Group
	g.SetLimit(s.cfg.EnrichConcurrency)
	for i := range results {
		g.Go(func() error {
			c := &results[i].Candidate
			hasTax, err := s.repo.ItemHasTax(ctx, c.ID)
			if err != nil {
				log.Warn("tax lookup failed", zap.String("item_id", c.ID), zap.Error(err))
			} else {
				c.HasTax = hasTax
			}

			img, err := s.repo.GetPrimaryImage(ctx, c.ID)
			switch {
			case errors.Is(err, storage.ErrNotFound):
			case err != nil:
				log.Warn("image lookup failed", zap.String("item_id", c.ID), zap.Error(err))
			case img != nil:
				c.Image = img
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Items converts results to their presentation shape
func (s *Searcher) Items(results []types.ScoredResult) []types.ResultItem {
	items := make([]types.ResultItem, len(results))
	for i := range results {
		items[i] = results[i].ToResultItem(s.cfg.MinorUnitExponent)
	}
	return items
}

// checkCache looks up a cached response, returning a deep copy
func (s *Searcher) checkCache(key uint64) *Response {
	if s.cache == nil {
		return nil
	}
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(key)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(key)
		s.cacheMu.Unlock()
		return nil
	}
	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

// storeInCache saves a deep copy of a response
func (s *Searcher) storeInCache(key uint64, response *Response) {
	if s.cache == nil {
		return
	}
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(key, entry)
	s.cacheMu.Unlock()
}

// copyResponse creates a deep copy of a Response
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.ScoredResult, len(src.Results))
	for i, r := range src.Results {
		dst.Results[i] = r
		c := &dst.Results[i].Candidate
		if r.Candidate.PriceAmount != nil {
			amount := *r.Candidate.PriceAmount
			c.PriceAmount = &amount
		}
		if r.Candidate.Image != nil {
			img := *r.Candidate.Image
			c.Image = &img
		}
		if r.Candidate.Case != nil {
			info := *r.Candidate.Case
			c.Case = &info
		}
	}
	return &dst
}

// computeQueryHash keys the cache by normalized query, fields and limit
func computeQueryHash(req Request) uint64 {
	var data strings.Builder
	data.WriteString(tokenizer.Normalize(req.Query))
	data.WriteString("|")
	data.WriteString(req.Filters.String())
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.Limit))
	return xxhash.Sum64String(data.String())
}

// InvalidateCache drops every cached response. The loader calls it after
// writing to the catalog.
func (s *Searcher) InvalidateCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen reports the number of cached responses
func (s *Searcher) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

func outcomeOf(resp *Response, err error) string {
	switch {
	case err == nil && len(resp.Results) == 0:
		return metrics.OutcomeEmpty
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	case errors.Is(err, types.ErrRepositoryUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
