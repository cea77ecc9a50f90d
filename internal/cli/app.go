package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/docsearch/internal/batch"
	"github.com/dshills/docsearch/internal/cache"
	"github.com/dshills/docsearch/internal/chunker"
	"github.com/dshills/docsearch/internal/config"
	"github.com/dshills/docsearch/internal/embedder"
	"github.com/dshills/docsearch/internal/ingest"
	"github.com/dshills/docsearch/internal/ratelimit"
	"github.com/dshills/docsearch/internal/searcher"
	"github.com/dshills/docsearch/internal/storage"
)

// DefaultDrainTimeout bounds how long Close waits for queued embeddings
const DefaultDrainTimeout = 30 * time.Second

// App holds every service of a running process. It is built once from the
// configuration and shared by all commands.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Storage  *storage.SQLiteStorage
	Store    cache.Store
	Cache    *cache.TaggedCache
	Pipeline *embedder.Pipeline
	Searcher *searcher.Searcher
	Ingest   *ingest.Service

	// DrainTimeout bounds the wait for queued embeddings in Close
	DrainTimeout time.Duration
}

// NewApp wires the services: storage, the cache store, the provider limiter
// sharing that store, the retrying embedding pipeline, then search and ingest
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger, DrainTimeout: DefaultDrainTimeout}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.Storage = store

	cacheStore, err := newCacheStore(cfg.Cache)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	app.Store = cacheStore
	app.Cache = cache.New(cacheStore, cache.Config{
		DefaultTTL: cfg.Cache.TTL,
		TagGrace:   cfg.Cache.TagGrace,
	}, logger.With("component", "cache"))

	provider, err := embedder.New(embedder.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
		Timeout:  cfg.Embedding.Timeout,
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	limiterLog := ratelimit.WithLogger(logger.With("component", "ratelimit"))
	limiter := ratelimit.NewLimiter(cacheStore, ratelimit.Config{
		Ceiling: cfg.RateLimit.Ceiling,
		Window:  cfg.RateLimit.Window,
	}, limiterLog)
	retrier := ratelimit.NewRetrier(ratelimit.RetryConfig{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		BaseDelay:   cfg.RateLimit.BaseDelay,
		MaxDelay:    cfg.RateLimit.MaxDelay,
	}, limiter, limiterLog)

	pipeline, err := embedder.NewPipeline(provider, retrier, embedder.NewCache(cfg.Embedding.CacheSize), embedder.PipelineConfig{
		ProviderBatchSize: cfg.Embedding.ProviderBatchSize,
		InterCallDelay:    cfg.Embedding.InterCallDelay,
		FallbackDelay:     cfg.Embedding.FallbackDelay,
		Batch: batch.Config{
			MaxBatchSize: cfg.Batch.MaxBatchSize,
			MaxWaitTime:  cfg.Batch.MaxWaitTime,
			Concurrency:  cfg.Batch.Concurrency,
		},
	}, embedder.WithLogger(logger.With("component", "embedder")))
	if err != nil {
		_ = provider.Close()
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	app.Pipeline = pipeline

	c, err := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Searcher = searcher.NewSearcher(store, pipeline, app.Cache, searcher.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		OverFetch:    cfg.Search.OverFetch,
		CacheTTL:     cfg.Cache.TTL,
		MinOverlap:   cfg.Search.MinOverlap,
		GapMarker:    searcher.DefaultGapMarker,
	}, logger.With("component", "searcher"))

	app.Ingest = ingest.NewService(store, c, pipeline, app.Searcher, logger.With("component", "ingest"))

	return app, nil
}

func newCacheStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "redis":
		store, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory", "":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Close waits up to DrainTimeout for queued and in-flight embeddings, then
// releases every resource. Items still queued after the timeout fail.
func (a *App) Close() error {
	var errs []error
	if a.Pipeline != nil {
		timeout := a.DrainTimeout
		if timeout <= 0 {
			timeout = DefaultDrainTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.Pipeline.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain pipeline: %w", err))
		}
		cancel()
		if err := a.Pipeline.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pipeline: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
