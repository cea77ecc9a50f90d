package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docsearch/internal/batch"
	"github.com/dshills/docsearch/internal/ratelimit"
)

// Pipeline defaults
const (
	DefaultProviderBatchSize = 1
	DefaultInterCallDelay    = 500 * time.Millisecond
	DefaultFallbackDelay     = time.Second
)

// PipelineConfig tunes how texts reach the provider
type PipelineConfig struct {
	// ProviderBatchSize is the number of texts per provider call inside one
	// scheduler batch; 1 sends every text on its own.
	ProviderBatchSize int

	// InterCallDelay separates consecutive provider calls within a batch
	InterCallDelay time.Duration

	// FallbackDelay separates calls in the sequential fallback
	FallbackDelay time.Duration

	Batch batch.Config
}

// DefaultPipelineConfig returns the default pipeline settings
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ProviderBatchSize: DefaultProviderBatchSize,
		InterCallDelay:    DefaultInterCallDelay,
		FallbackDelay:     DefaultFallbackDelay,
		Batch:             batch.DefaultConfig(),
	}
}

// Result is the outcome for one text of a multi-text request
type Result struct {
	Index  int
	Vector []float32
	Err    error
}

// PipelineStats reports pipeline state
type PipelineStats struct {
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	CacheSize int         `json:"cache_size"`
	Scheduler batch.Stats `json:"scheduler"`
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithClock sets the clock for delays and the batch timer
func WithClock(clock clockwork.Clock) PipelineOption {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline turns texts into vectors. Single requests are coalesced by a batch
// scheduler, every provider call goes through the retrier, and results are
// kept in an LRU cache keyed by model and content hash.
type Pipeline struct {
	provider  Embedder
	retrier   *ratelimit.Retrier
	cache     *Cache
	scheduler *batch.Scheduler[string, []float32]
	config    PipelineConfig
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewPipeline wires a provider into a pipeline. cache may be nil to disable caching.
func NewPipeline(provider Embedder, retrier *ratelimit.Retrier, cache *Cache, config PipelineConfig, opts ...PipelineOption) (*Pipeline, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrNoProviderEnabled)
	}
	if retrier == nil {
		retrier = ratelimit.NewRetrier(ratelimit.DefaultRetryConfig(), nil)
	}

	defaults := DefaultPipelineConfig()
	if config.ProviderBatchSize <= 0 {
		config.ProviderBatchSize = defaults.ProviderBatchSize
	}
	if config.ProviderBatchSize > MaxBatchSize {
		config.ProviderBatchSize = MaxBatchSize
	}
	if config.InterCallDelay < 0 {
		config.InterCallDelay = 0
	}
	if config.FallbackDelay < 0 {
		config.FallbackDelay = 0
	}

	p := &Pipeline{
		provider: provider,
		retrier:  retrier,
		cache:    cache,
		config:   config,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	scheduler, err := batch.New(config.Batch, p.processBatch,
		batch.WithClock(p.clock),
		batch.WithLogger(p.logger),
		batch.WithErrorHook(func(err error, texts []string) {
			p.logger.Warn("embedding batch failed", "texts", len(texts), "error", err)
		}))
	if err != nil {
		return nil, fmt.Errorf("create batch scheduler: %w", err)
	}
	p.scheduler = scheduler

	return p, nil
}

// Provider returns the underlying provider
func (p *Pipeline) Provider() Embedder {
	return p.provider
}

func (p *Pipeline) cached(text string) ([]float32, bool) {
	return p.cache.Get(p.provider.Provider(), p.provider.Model(), text)
}

func (p *Pipeline) store(text string, vector []float32) {
	p.cache.Put(p.provider.Provider(), p.provider.Model(), text, vector)
}

// sleep waits on the pipeline clock, returning early on cancellation
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(d):
		return nil
	}
}

// processBatch is the scheduler's ProcessFunc. Any failed provider call fails
// the whole batch.
func (p *Pipeline) processBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	size := p.config.ProviderBatchSize

	for start := 0; start < len(texts); start += size {
		if start > 0 {
			if err := p.sleep(ctx, p.config.InterCallDelay); err != nil {
				return nil, err
			}
		}

		end := min(start+size, len(texts))
		chunk := texts[start:end]

		resp, err := ratelimit.Do(ctx, p.retrier, func(ctx context.Context) (*BatchEmbeddingResponse, error) {
			return p.provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: chunk})
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(chunk) {
			return nil, fmt.Errorf("%w: %d embeddings for %d texts", ErrProviderFailed, len(resp.Embeddings), len(chunk))
		}

		for i, emb := range resp.Embeddings {
			p.store(chunk[i], emb.Vector)
			vectors = append(vectors, emb.Vector)
		}
	}

	return vectors, nil
}

// EmbedOne returns the vector for one text, coalescing the request with
// concurrent callers
func (p *Pipeline) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if vec, ok := p.cached(text); ok {
		return vec, nil
	}
	return p.scheduler.Do(ctx, text)
}

// EmbedBatched submits every text to the scheduler concurrently and waits for all of them
func (p *Pipeline) EmbedBatched(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	var g errgroup.Group
	for i, text := range texts {
		g.Go(func() error {
			vec, err := p.EmbedOne(ctx, text)
			results[i] = Result{Index: i, Vector: vec, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// EmbedSequential embeds texts strictly one at a time through the single-text
// endpoint, pausing FallbackDelay between provider calls. Every text is
// attempted; failures are reported per text.
func (p *Pipeline) EmbedSequential(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))
	called := false

	for i, text := range texts {
		results[i].Index = i

		if text == "" {
			results[i].Err = ErrEmptyText
			continue
		}
		if vec, ok := p.cached(text); ok {
			results[i].Vector = vec
			continue
		}

		if called {
			if err := p.sleep(ctx, p.config.FallbackDelay); err != nil {
				results[i].Err = err
				continue
			}
		}
		called = true

		emb, err := ratelimit.Do(ctx, p.retrier, func(ctx context.Context) (*Embedding, error) {
			return p.provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		})
		if err != nil {
			p.logger.Warn("sequential embedding failed", "index", i, "error", err)
			results[i].Err = err
			continue
		}

		p.store(text, emb.Vector)
		results[i].Vector = emb.Vector
	}

	return results
}

// EmbedAll embeds texts through the batch path and, if any text failed,
// repeats the whole set through the sequential path. Texts that succeeded in
// the first pass are served from the cache the second time.
func (p *Pipeline) EmbedAll(ctx context.Context, texts []string) []Result {
	results := p.EmbedBatched(ctx, texts)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed == 0 || ctx.Err() != nil {
		return results
	}

	p.logger.Warn("batched embedding incomplete, falling back to sequential",
		"failed", failed, "total", len(texts))

	fallback := p.EmbedSequential(ctx, texts)
	for i, r := range fallback {
		// Keep a batched success even if the fallback lost it, e.g. to cache eviction
		if r.Err != nil && results[i].Err == nil {
			continue
		}
		results[i] = r
	}
	return results
}

// EmbedMany returns one vector per text in order, or an error naming every
// text that could not be embedded
func (p *Pipeline) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	results := p.EmbedAll(ctx, texts)

	vectors := make([][]float32, len(results))
	var errs []error
	for i, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("text %d: %w", i, r.Err))
			continue
		}
		vectors[i] = r.Vector
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return vectors, nil
}

// Drain waits for every queued and in-flight batch
func (p *Pipeline) Drain(ctx context.Context) error {
	return p.scheduler.Drain(ctx)
}

// Stats returns pipeline state
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Provider:  p.provider.Provider(),
		Model:     p.provider.Model(),
		CacheSize: p.cache.Len(),
		Scheduler: p.scheduler.Stats(),
	}
}

// Close stops the scheduler and releases the provider
func (p *Pipeline) Close() error {
	schedErr := p.scheduler.Close()
	provErr := p.provider.Close()
	return errors.Join(schedErr, provErr)
}
