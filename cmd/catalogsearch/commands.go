package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dshills/catalogsearch/internal/loader"
	"github.com/dshills/catalogsearch/internal/mcp"
	"github.com/dshills/catalogsearch/internal/ranker"
	"github.com/dshills/catalogsearch/internal/searcher"
	"github.com/dshills/catalogsearch/internal/storage"
	"github.com/dshills/catalogsearch/pkg/types"
)

func serveCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			server, err := mcp.NewServer(state.cfg,
				mcp.WithLogger(state.log), mcp.WithMetrics(state.metrics))
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			state.log.Info("MCP server ready, listening on stdio",
				zap.String("version", version),
				zap.String("build_mode", storage.BuildMode),
				zap.String("driver", storage.DriverName))
			if err := server.Serve(c.Context); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("server error: %w", err)
			}
			state.log.Info("server stopped")
			return nil
		},
	}
}

func searchCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the catalog and print results as JSON",
		ArgsUsage: "QUERY",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "fields",
				Aliases: []string{"f"},
				Usage:   "Fields to match on: name, sku, barcode, category (default from config)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of results",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of ranked results to skip",
			},
		},
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return errors.New("search requires a QUERY argument")
			}

			filters := state.cfg.Search.DefaultFields
			if names := c.StringSlice("fields"); len(names) > 0 {
				parsed, err := types.ParseFilters(names)
				if err != nil {
					return err
				}
				if parsed.IsEmpty() {
					return errors.New("--fields must name at least one field")
				}
				filters = parsed
			}

			limit := c.Int("limit")
			if limit <= 0 {
				limit = state.cfg.Search.ResultLimit
			}
			offset := max(c.Int("offset"), 0)

			store, err := mcp.OpenStorage(state.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			srch, err := searcher.New(store, state.cfg.SearcherConfig(),
				searcher.WithLogger(state.log), searcher.WithMetrics(state.metrics))
			if err != nil {
				return err
			}

			resp, err := srch.Search(c.Context, searcher.Request{
				Query:   query,
				Filters: filters,
				Limit:   min(offset+limit, searcher.MaxResultLimit),
			})
			if err != nil {
				return err
			}

			page := ranker.Page(resp.Results, offset, limit)
			return writeJSON(c, map[string]interface{}{
				"query":         resp.Query,
				"total_matches": resp.TotalMatches,
				"returned":      len(page),
				"duration_ms":   resp.Duration.Milliseconds(),
				"results":       srch.Items(page),
			})
		},
	}
}

func importCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a JSON catalog snapshot",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Records committed per transaction (default from config)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Validation workers and concurrent batches (default from config)",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("import requires a FILE argument")
			}

			store, err := mcp.OpenStorage(state.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			cfg := &loader.Config{
				Workers:   state.cfg.Import.Workers,
				BatchSize: state.cfg.Import.BatchSize,
			}
			if n := c.Int("batch-size"); n > 0 {
				cfg.BatchSize = n
			}
			if n := c.Int("workers"); n > 0 {
				cfg.Workers = n
			}

			ld := loader.New(store, loader.WithLogger(state.log), loader.WithMetrics(state.metrics))
			stats, err := ld.ImportFile(c.Context, path, cfg)
			if err != nil {
				return err
			}

			return writeJSON(c, map[string]interface{}{
				"written":     stats.Written,
				"rejected":    stats.Rejected,
				"errors":      stats.ErrorMessages,
				"duration_ms": stats.Duration.Milliseconds(),
			})
		},
	}
}

func statusCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Print catalog statistics",
		Action: func(c *cli.Context) error {
			store, err := mcp.OpenStorage(state.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			status, err := store.GetStatus(c.Context)
			if err != nil {
				return err
			}
			dbPath, _ := state.cfg.DBPath()

			return writeJSON(c, map[string]interface{}{
				"database":         dbPath,
				"schema_version":   status.SchemaVersion,
				"items_count":      status.ItemsCount,
				"variations_count": status.VariationsCount,
				"categories_count": status.CategoriesCount,
				"case_upc_count":   status.CaseUpcCount,
				"db_size_mb":       fmt.Sprintf("%.2f", status.SizeMB),
			})
		},
	}
}

// writeJSON prints v as indented JSON to the app's writer
func writeJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
