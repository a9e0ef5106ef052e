// Package cli provides the entity-search command line: the HTTP server plus offline ingest,
// search and suggest commands that work directly on the configured document store.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/internal/engine"
	"github.com/gcbaptista/entity-search/internal/logging"
	"github.com/gcbaptista/entity-search/internal/metrics"
)

// app holds the state shared by every command.
type app struct {
	configPath string
	logLevel   string
	storage    string

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd creates the root command for the entity-search CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "entity-search",
		Short: "Multi-entity search service with typo tolerance and context-aware ranking",
		Long: `entity-search indexes companies, sectors, metrics, articles and portfolios and answers
free-text queries across all of them, with inline filters and per-user ranking.

Example usage:
  entity-search serve --config configs/search.yaml
  entity-search ingest corpus.json
  entity-search search "apple pe_ratio<30"
  entity-search suggest micro`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("entity-search version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: built-in configuration)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (default: from config)")
	cmd.PersistentFlags().StringVar(&a.storage, "storage", "", "document store path, overrides storage.path from the config")

	cmd.AddCommand(
		newServeCmd(a),
		newIngestCmd(a),
		newSearchCmd(a),
		newSuggestCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and builds the logger. Flags override the file.
func (a *app) load() error {
	cfg, err := config.LoadOrDefault(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.storage != "" {
		cfg.Storage.Path = a.storage
	}

	logger, err := logging.NewLogger(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// openEngine loads configuration and builds an engine over the configured store.
func (a *app) openEngine(ctx context.Context, m *metrics.Metrics) (*engine.Engine, error) {
	if err := a.load(); err != nil {
		return nil, err
	}
	opts := []engine.Option{engine.WithLogger(a.logger)}
	if m != nil {
		opts = append(opts, engine.WithMetrics(m))
	}
	return engine.New(ctx, a.cfg, opts...)
}

func (a *app) sync() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
