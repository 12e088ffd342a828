package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/catalogsearch/internal/config"
	"github.com/dshills/catalogsearch/internal/loader"
	"github.com/dshills/catalogsearch/internal/metrics"
	"github.com/dshills/catalogsearch/internal/searcher"
	"github.com/dshills/catalogsearch/internal/storage"
	"github.com/dshills/catalogsearch/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "catalogsearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	loader   *loader.Loader
	searcher *searcher.Searcher
	logger   *zap.Logger

	defaultFields types.Filters
	importConfig  *loader.Config
}

// Option configures a Server
type Option func(*serverOptions)

type serverOptions struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// WithLogger sets the logger shared by all components
func WithLogger(l *zap.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithMetrics sets the metrics sink shared by all components
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *serverOptions) { o.metrics = m }
}

// NewServer opens the catalog store and wires the searcher and loader
func NewServer(cfg config.Config, opts ...Option) (*Server, error) {
	o := &serverOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	store, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}

	srch, err := searcher.New(store, cfg.SearcherConfig(),
		searcher.WithLogger(o.logger), searcher.WithMetrics(o.metrics))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create searcher: %w", err)
	}

	ld := loader.New(store, loader.WithLogger(o.logger), loader.WithMetrics(o.metrics))
	ld.OnImport(srch.InvalidateCache)

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		storage:       store,
		loader:        ld,
		searcher:      srch,
		logger:        o.logger,
		defaultFields: cfg.Search.DefaultFields,
		importConfig:  &loader.Config{Workers: cfg.Import.Workers, BatchSize: cfg.Import.BatchSize},
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// OpenStorage opens the configured database, creating its directory
func OpenStorage(cfg config.Config) (*storage.SQLiteStorage, error) {
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// Searcher returns the server's searcher
func (s *Server) Searcher() *searcher.Searcher {
	return s.searcher
}

// Loader returns the server's loader
func (s *Server) Loader() *loader.Loader {
	return s.loader
}

// Close releases the catalog store
func (s *Server) Close() error {
	return s.storage.Close()
}

// Serve starts the MCP server on stdio and blocks until shutdown.
// Stdout carries the protocol, so logs go to the configured logger only.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(searchCatalogTool(), s.withRequestLogger("search_catalog", s.handleSearchCatalog))
	s.mcp.AddTool(lookupBarcodeTool(), s.withRequestLogger("lookup_barcode", s.handleLookupBarcode))
	s.mcp.AddTool(importCatalogTool(), s.withRequestLogger("import_catalog", s.handleImportCatalog))
	s.mcp.AddTool(getStatusTool(), s.withRequestLogger("get_status", s.handleGetStatus))
	return nil
}
