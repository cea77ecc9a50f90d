package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/config"
	"github.com/dshills/docsearch/internal/logging"
)

// BuildInfo is stamped by the linker
type BuildInfo struct {
	Version   string
	BuildTime string
}

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	configPath string
	dbPath     string
	provider   string
	logLevel   string
}

// runner builds the App on first use and closes it after the command
type runner struct {
	opts  globalOptions
	build BuildInfo
	app   *App
}

// Execute runs the command line and releases the services afterwards
func Execute(ctx context.Context, build BuildInfo) error {
	root, r := newRootCmd(build)
	defer func() {
		if err := r.close(); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()
	root.SetOut(os.Stdout)
	return root.ExecuteContext(ctx)
}

// newRootCmd creates the docsearch command tree
func newRootCmd(build BuildInfo) (*cobra.Command, *runner) {
	r := &runner{build: build}

	root := &cobra.Command{
		Use:   "docsearch",
		Short: "Semantic search over your documents",
		Long: `docsearch splits documents into overlapping passages, embeds them and
answers natural-language queries with one merged excerpt per document.

Run "docsearch serve" to expose the same operations to MCP clients over stdio.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&r.opts.configPath, "config", "c", "", "config file (default: ./docsearch.yaml or ~/.config/docsearch/config.yaml)")
	flags.StringVar(&r.opts.dbPath, "db", "", "SQLite database path (overrides config)")
	flags.StringVar(&r.opts.provider, "provider", "", "embedding provider: gemini, openai or local (overrides config)")
	flags.StringVar(&r.opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")

	root.AddCommand(
		newServeCmd(r),
		newUploadCmd(r),
		newIngestDirCmd(r),
		newWatchCmd(r),
		newQueryCmd(r),
		newEmbedCmd(r),
		newHistoryCmd(r),
		newListCmd(r),
		newDeleteCmd(r),
		newStatusCmd(r),
		newCacheCmd(r),
		newVersionCmd(r),
	)

	return root, r
}

// loadConfig resolves the configuration and applies flag overrides
func (r *runner) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if r.opts.configPath != "" {
		cfg, err = config.Load(r.opts.configPath)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if r.opts.dbPath != "" {
		cfg.Database.Path = r.opts.dbPath
	}
	if r.opts.provider != "" {
		cfg.Embedding.Provider = r.opts.provider
		cfg.ApplyProviderKey()
	}
	if r.opts.logLevel != "" {
		cfg.Logging.Level = r.opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App builds the services on first call
func (r *runner) App() (*App, error) {
	if r.app != nil {
		return r.app, nil
	}

	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	r.app = app
	return app, nil
}

func (r *runner) close() error {
	if r.app == nil {
		return nil
	}
	err := r.app.Close()
	r.app = nil
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
