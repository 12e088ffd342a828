package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/catalogsearch/internal/logger"
	"github.com/dshills/catalogsearch/internal/metrics"
	"github.com/dshills/catalogsearch/internal/storage"
	"github.com/dshills/catalogsearch/pkg/types"
)

var (
	// ErrImportInProgress is returned when another import holds the lock
	ErrImportInProgress = errors.New("catalog import already in progress")

	// ErrInvalidSnapshot is returned when a snapshot cannot be decoded
	ErrInvalidSnapshot = errors.New("invalid catalog snapshot")
)

// Record kinds used in statistics and metrics
const (
	KindCategory  = "category"
	KindItem      = "item"
	KindVariation = "variation"
	KindTeamData  = "team_data"
)

// Loader writes catalog snapshots into the store: parse -> validate -> write
type Loader struct {
	storage storage.Storage
	logger  *zap.Logger
	metrics *metrics.Metrics
	lock    ImportLock

	hooksMu sync.Mutex
	hooks   []func()
}

// Config contains configuration for an import
type Config struct {
	Workers   int // Validation pool size and concurrent batches (default: runtime.NumCPU())
	BatchSize int // Records committed per transaction (default: 500)
}

// Statistics contains statistics about an import
type Statistics struct {
	Written       map[string]int
	Rejected      map[string]int
	Duration      time.Duration
	ErrorMessages []string
}

// Total returns the number of records written. Only committed batches count.
func (s *Statistics) Total() int {
	n := 0
	for _, v := range s.Written {
		n += v
	}
	return n
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) { ld.logger = logger.OrNop(l) }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(ld *Loader) { ld.metrics = m }
}

// New creates a new Loader. It is the only writer of the store it wraps.
func New(store storage.Storage, opts ...Option) *Loader {
	ld := &Loader{
		storage: store,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// OnImport registers a hook that runs after every successful import.
// Searchers register their cache invalidation here.
func (ld *Loader) OnImport(fn func()) {
	ld.hooksMu.Lock()
	defer ld.hooksMu.Unlock()
	ld.hooks = append(ld.hooks, fn)
}

// InProgress reports whether an import is running
func (ld *Loader) InProgress() bool {
	return ld.lock.Held()
}

// ImportFile imports a JSON snapshot from disk
func (ld *Loader) ImportFile(ctx context.Context, path string, config *Config) (*Statistics, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	snap, err := DecodeSnapshot(f)
	if err != nil {
		return nil, err
	}
	return ld.Import(ctx, snap, config)
}

// Import validates and writes a snapshot. Invalid records are skipped and
// reported; storage failures abort the import.
func (ld *Loader) Import(ctx context.Context, snap *Snapshot, config *Config) (*Statistics, error) {
	if !ld.lock.TryAcquire() {
		return nil, ErrImportInProgress
	}
	defer ld.lock.Release()

	cfg := withDefaults(config)
	log := logger.FromContext(ctx, ld.logger)
	startTime := time.Now()
	stats := &Statistics{
		Written:       make(map[string]int),
		Rejected:      make(map[string]int),
		ErrorMessages: make([]string, 0),
	}

	plan, err := ld.validate(ctx, snap, cfg.Workers, stats)
	if err != nil {
		ld.metrics.ObserveImport(metrics.OutcomeError, nil, nil)
		return nil, err
	}

	if err := ld.write(ctx, plan, cfg, stats); err != nil {
		ld.metrics.ObserveImport(metrics.OutcomeError, stats.Written, stats.Rejected)
		log.Error("catalog import failed", zap.Int("committed", stats.Total()), zap.Error(err))
		// Committed batches stay written, so readers must not keep stale results
		if stats.Total() > 0 {
			ld.runHooks()
		}
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	ld.metrics.ObserveImport(metrics.OutcomeSuccess, stats.Written, stats.Rejected)
	log.Info("catalog import finished",
		zap.Int("items", stats.Written[KindItem]),
		zap.Int("variations", stats.Written[KindVariation]),
		zap.Int("categories", stats.Written[KindCategory]),
		zap.Int("team_data", stats.Written[KindTeamData]),
		zap.Int("rejected", len(stats.ErrorMessages)),
		zap.Duration("duration", stats.Duration))

	ld.runHooks()
	return stats, nil
}

func withDefaults(config *Config) Config {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return cfg
}

func (ld *Loader) runHooks() {
	ld.hooksMu.Lock()
	hooks := append([]func(){}, ld.hooks...)
	ld.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// writePlan holds the records that passed validation
type writePlan struct {
	categories []CategoryRecord
	items      []ItemRecord
	teamData   []TeamDataRecord
}

// validate checks every record in an ants pool and returns the survivors
// in snapshot order
func (ld *Loader) validate(ctx context.Context, snap *Snapshot, workers int, stats *Statistics) (*writePlan, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation pool: %w", err)
	}
	defer pool.Release()

	catErrs := make([]error, len(snap.Categories))
	itemErrs := make([]error, len(snap.Items))
	varErrs := make([][]error, len(snap.Items))
	teamErrs := make([]error, len(snap.TeamData))

	var wg sync.WaitGroup
	submit := func(task func()) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			task()
		}); err != nil {
			wg.Done()
			return fmt.Errorf("failed to submit validation task: %w", err)
		}
		return nil
	}

	var submitErr error
	for i := range snap.Categories {
		if submitErr = submit(func() { catErrs[i] = snap.Categories[i].validate() }); submitErr != nil {
			break
		}
	}
	for i := 0; submitErr == nil && i < len(snap.Items); i++ {
		submitErr = submit(func() {
			it := snap.Items[i]
			itemErrs[i] = it.validate()
			errs := make([]error, len(it.Variations))
			for j, v := range it.Variations {
				errs[j] = v.validate(it.ID)
			}
			varErrs[i] = errs
		})
	}
	for i := 0; submitErr == nil && i < len(snap.TeamData); i++ {
		submitErr = submit(func() { teamErrs[i] = snap.TeamData[i].validate() })
	}
	wg.Wait()
	if submitErr != nil {
		return nil, submitErr
	}

	plan := &writePlan{}
	for i, c := range snap.Categories {
		if ld.reject(stats, KindCategory, catErrs[i]) {
			continue
		}
		plan.categories = append(plan.categories, c)
	}
	for i, it := range snap.Items {
		if ld.reject(stats, KindItem, itemErrs[i]) {
			continue
		}
		kept := make([]VariationRecord, 0, len(it.Variations))
		for j, v := range it.Variations {
			if !ld.reject(stats, KindVariation, varErrs[i][j]) {
				kept = append(kept, v)
			}
		}
		it.Variations = kept
		plan.items = append(plan.items, it)
	}
	for i, t := range snap.TeamData {
		if ld.reject(stats, KindTeamData, teamErrs[i]) {
			continue
		}
		plan.teamData = append(plan.teamData, t)
	}
	return plan, nil
}

func (ld *Loader) reject(stats *Statistics, kind string, err error) bool {
	if err == nil {
		return false
	}
	stats.Rejected[kind]++
	stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", kind, err))
	ld.logger.Warn("skipping invalid record", zap.String("kind", kind), zap.Error(err))
	return true
}

// write commits categories first, then item and team-data batches
// concurrently, one transaction per batch
func (ld *Loader) write(ctx context.Context, plan *writePlan, cfg Config, stats *Statistics) error {
	if err := ld.inTx(ctx, func(tx storage.Tx) error {
		for _, c := range plan.categories {
			if err := tx.UpsertCategory(ctx, c.toCategory()); err != nil {
				return fmt.Errorf("category %s: %w", c.ID, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	stats.Written[KindCategory] = len(plan.categories)

	var items, variations, team atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for batch := range slices.Chunk(plan.items, cfg.BatchSize) {
		g.Go(func() error {
			written := 0
			err := ld.inTx(gctx, func(tx storage.Tx) error {
				for _, it := range batch {
					n, err := writeItem(gctx, tx, it)
					if err != nil {
						return err
					}
					written += n
				}
				return nil
			})
			if err != nil {
				return err
			}
			variations.Add(int64(written))
			items.Add(int64(len(batch)))
			return nil
		})
	}
	for batch := range slices.Chunk(plan.teamData, cfg.BatchSize) {
		g.Go(func() error {
			err := ld.inTx(gctx, func(tx storage.Tx) error {
				for _, t := range batch {
					if err := tx.UpsertTeamData(gctx, t.toTeamData()); err != nil {
						return fmt.Errorf("team data %s: %w", t.ItemID, err)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			team.Add(int64(len(batch)))
			return nil
		})
	}

	err := g.Wait()
	stats.Written[KindItem] = int(items.Load())
	stats.Written[KindVariation] = int(variations.Load())
	stats.Written[KindTeamData] = int(team.Load())
	return err
}

func writeItem(ctx context.Context, tx storage.Tx, it ItemRecord) (int, error) {
	if err := tx.UpsertItem(ctx, it.toItem()); err != nil {
		return 0, fmt.Errorf("item %s: %w", it.ID, err)
	}
	for _, v := range it.Variations {
		if err := tx.UpsertVariation(ctx, v.toVariation(it.ID)); err != nil {
			return 0, fmt.Errorf("variation %s: %w", v.ID, err)
		}
	}
	if err := tx.SetItemTaxes(ctx, it.ID, it.TaxIDs); err != nil {
		return 0, fmt.Errorf("item %s taxes: %w", it.ID, err)
	}
	if it.Image != nil {
		img := types.ImageRef{ID: it.Image.ID, URL: it.Image.URL}
		if err := tx.UpsertImage(ctx, it.ID, img, true); err != nil {
			return 0, fmt.Errorf("item %s image: %w", it.ID, err)
		}
	}
	return len(it.Variations), nil
}

// inTx runs fn in a transaction, committing only when it succeeds
func (ld *Loader) inTx(ctx context.Context, fn func(storage.Tx) error) error {
	tx, err := ld.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
