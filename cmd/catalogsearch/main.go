package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dshills/catalogsearch/internal/config"
	"github.com/dshills/catalogsearch/internal/logger"
	"github.com/dshills/catalogsearch/internal/metrics"
	"github.com/dshills/catalogsearch/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// appState is populated by the root Before hook and shared by commands
type appState struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "catalogsearch: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	state := &appState{}

	return &cli.App{
		Name:  "catalogsearch",
		Usage: "Offline fuzzy search over a local product catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"CATALOGSEARCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the catalog database (overrides config)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			return state.setup(c)
		},
		After: func(*cli.Context) error {
			if state.log != nil {
				_ = state.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(state),
			searchCommand(state),
			importCommand(state),
			statusCommand(state),
			{
				Name:  "version",
				Usage: "Print build information",
				Action: func(c *cli.Context) error {
					w := c.App.Writer
					fmt.Fprintf(w, "catalogsearch %s\n", version)
					fmt.Fprintf(w, "Build Time: %s\n", buildTime)
					fmt.Fprintf(w, "Build Mode: %s\n", storage.BuildMode)
					fmt.Fprintf(w, "SQLite Driver: %s\n", storage.DriverName)
					return nil
				},
			},
		},
	}
}

// setup loads configuration, applies flag overrides and builds the logger
func (s *appState) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if db := c.String("db"); db != "" {
		cfg.Database.Path = db
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	// Logs go to stderr; stdout carries results and the MCP protocol
	log, err := logger.NewLogger(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	s.cfg = cfg
	s.log = log
	s.metrics = metrics.New()
	return nil
}
