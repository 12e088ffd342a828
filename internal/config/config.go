// Package config loads the catalog search configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/dshills/catalogsearch/internal/caseupc"
	"github.com/dshills/catalogsearch/internal/ranker"
	"github.com/dshills/catalogsearch/internal/retriever"
	"github.com/dshills/catalogsearch/internal/scorer"
	"github.com/dshills/catalogsearch/internal/searcher"
	"github.com/dshills/catalogsearch/pkg/types"
)

// Environment variables that override file settings
const (
	EnvDBPath   = "CATALOGSEARCH_DB_PATH"
	EnvEnv      = "CATALOGSEARCH_ENV"
	EnvLogLevel = "CATALOGSEARCH_LOG_LEVEL"
)

// DefaultDBPath is used when neither the file nor the environment names a database
const DefaultDBPath = "~/.catalogsearch/catalog.db"

// Config holds the catalog search configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Scoring  scorer.Config  `yaml:"scoring"`
	Debounce DebounceConfig `yaml:"debounce"`
	Import   ImportConfig   `yaml:"import"`
	Logging  LoggingConfig  `yaml:"logging"`
	Currency CurrencyConfig `yaml:"currency"`
}

// DatabaseConfig holds the catalog database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig holds orchestrator settings.
type SearchConfig struct {
	MinQueryLength             int           `yaml:"min_query_length"`
	MinScore                   float64       `yaml:"min_score"`
	ResultLimit                int           `yaml:"result_limit"`
	FieldLimit                 int           `yaml:"field_limit"`
	DefaultFields              types.Filters `yaml:"default_fields"`
	CacheSize                  int           `yaml:"cache_size"` // negative disables the cache
	CacheTTL                   time.Duration `yaml:"cache_ttl"`
	ReadyRetries               int           `yaml:"ready_retries"`
	ReadyBackoff               time.Duration `yaml:"ready_backoff"`
	ExcludeDiscontinuedCaseUPC bool          `yaml:"exclude_discontinued_case_upc"`
	EnrichConcurrency          int           `yaml:"enrich_concurrency"`
}

// TierConfig maps queries of at most MaxLength runes to a debounce delay.
type TierConfig struct {
	MaxLength int           `yaml:"max_length"`
	Delay     time.Duration `yaml:"delay"`
}

// DebounceConfig holds the session debounce tiers.
type DebounceConfig struct {
	Tiers   []TierConfig  `yaml:"tiers"`
	Default time.Duration `yaml:"default"`
}

// ImportConfig holds loader settings.
type ImportConfig struct {
	BatchSize int `yaml:"batch_size"`
	Workers   int `yaml:"workers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `yaml:"env"`   // local, dev, prod
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// CurrencyConfig describes how stored minor units map to prices.
type CurrencyConfig struct {
	MinorUnitExponent int32 `yaml:"minor_unit_exponent"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: DefaultDBPath},
		Search: SearchConfig{
			MinQueryLength:             searcher.DefaultMinQueryLength,
			MinScore:                   ranker.DefaultMinScore,
			ResultLimit:                searcher.DefaultResultLimit,
			FieldLimit:                 retriever.DefaultFieldLimit,
			DefaultFields:              types.DefaultFilters(),
			CacheSize:                  searcher.DefaultCacheSize,
			CacheTTL:                   searcher.DefaultCacheTTL,
			ReadyRetries:               searcher.DefaultRetryConfig().MaxAttempts,
			ReadyBackoff:               searcher.DefaultRetryConfig().BaseDelay,
			ExcludeDiscontinuedCaseUPC: true,
			EnrichConcurrency:          searcher.DefaultEnrichConcurrency,
		},
		Scoring: scorer.DefaultConfig(),
		Debounce: DebounceConfig{
			Tiers: []TierConfig{
				{MaxLength: 2, Delay: 350 * time.Millisecond},
				{MaxLength: 4, Delay: 250 * time.Millisecond},
			},
			Default: 150 * time.Millisecond,
		},
		Import:   ImportConfig{BatchSize: 500, Workers: 4},
		Logging:  LoggingConfig{Env: "prod"},
		Currency: CurrencyConfig{MinorUnitExponent: searcher.DefaultMinorUnitExponent},
	}
}

// Load reads configuration from a YAML file. An empty path yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}

		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)

		// Keys absent from the file keep their defaults
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvEnv); v != "" {
		c.Logging.Env = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
	if c.Search.MinQueryLength <= 0 {
		c.Search.MinQueryLength = def.Search.MinQueryLength
	}
	if c.Search.ResultLimit <= 0 {
		c.Search.ResultLimit = def.Search.ResultLimit
	}
	if c.Search.FieldLimit <= 0 {
		c.Search.FieldLimit = def.Search.FieldLimit
	}
	if c.Search.CacheTTL <= 0 {
		c.Search.CacheTTL = def.Search.CacheTTL
	}
	if c.Search.ReadyRetries <= 0 {
		c.Search.ReadyRetries = def.Search.ReadyRetries
	}
	if c.Search.ReadyBackoff <= 0 {
		c.Search.ReadyBackoff = def.Search.ReadyBackoff
	}
	if c.Search.EnrichConcurrency <= 0 {
		c.Search.EnrichConcurrency = def.Search.EnrichConcurrency
	}
	if c.Scoring == (scorer.Config{}) {
		c.Scoring = def.Scoring
	}
	if c.Debounce.Default <= 0 {
		c.Debounce.Default = def.Debounce.Default
	}
	if c.Import.BatchSize <= 0 {
		c.Import.BatchSize = def.Import.BatchSize
	}
	if c.Import.Workers <= 0 {
		c.Import.Workers = def.Import.Workers
	}
	if c.Logging.Env == "" {
		c.Logging.Env = def.Logging.Env
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.Logging.Env {
	case "local", "dev", "prod":
	default:
		return fmt.Errorf("logging.env must be local, dev or prod, got %q", c.Logging.Env)
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	if c.Search.ResultLimit > searcher.MaxResultLimit {
		return fmt.Errorf("search.result_limit must be at most %d, got %d", searcher.MaxResultLimit, c.Search.ResultLimit)
	}
	if c.Search.MinScore < 0 {
		return fmt.Errorf("search.min_score must be non-negative, got %g", c.Search.MinScore)
	}
	if c.Search.DefaultFields.IsEmpty() {
		return errors.New("search.default_fields must enable at least one field")
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	for i, t := range c.Debounce.Tiers {
		if t.MaxLength <= 0 || t.Delay < 0 {
			return fmt.Errorf("debounce.tiers[%d] needs a positive max_length and non-negative delay", i)
		}
	}
	if c.Currency.MinorUnitExponent < 1 || c.Currency.MinorUnitExponent > 6 {
		return fmt.Errorf("currency.minor_unit_exponent must be between 1 and 6, got %d", c.Currency.MinorUnitExponent)
	}
	return nil
}

// SearcherConfig converts the file settings into orchestrator settings.
func (c *Config) SearcherConfig() searcher.Config {
	ready := searcher.DefaultRetryConfig()
	ready.MaxAttempts = c.Search.ReadyRetries
	ready.BaseDelay = c.Search.ReadyBackoff
	if ready.MaxDelay < ready.BaseDelay {
		ready.MaxDelay = ready.BaseDelay
	}

	caseCfg := caseupc.DefaultConfig()
	caseCfg.ExcludeDiscontinued = c.Search.ExcludeDiscontinuedCaseUPC

	return searcher.Config{
		MinQueryLength:    c.Search.MinQueryLength,
		MinScore:          c.Search.MinScore,
		ResultLimit:       c.Search.ResultLimit,
		FieldLimit:        c.Search.FieldLimit,
		CacheSize:         c.Search.CacheSize,
		CacheTTL:          c.Search.CacheTTL,
		EnrichConcurrency: c.Search.EnrichConcurrency,
		MinorUnitExponent: c.Currency.MinorUnitExponent,
		Ready:             ready,
		Scoring:           c.Scoring,
		CaseUPC:           caseCfg,
		Delay:             c.DelayFunc(),
	}
}

// DelayFunc builds the session debounce function from the tiers.
func (c *Config) DelayFunc() searcher.DelayFunc {
	tiers := make([]searcher.Tier, len(c.Debounce.Tiers))
	for i, t := range c.Debounce.Tiers {
		tiers[i] = searcher.Tier{MaxLength: t.MaxLength, Delay: t.Delay}
	}
	return searcher.TieredDelay(tiers, c.Debounce.Default)
}

// DBPath returns the database path with a leading ~ expanded.
func (c *Config) DBPath() (string, error) {
	return ExpandPath(c.Database.Path)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
