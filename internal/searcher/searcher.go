package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/docsearch/internal/cache"
	"github.com/dshills/docsearch/internal/storage"
	"github.com/dshills/docsearch/pkg/types"
)

const (
	// SearchTag is carried by every cached search response
	SearchTag = "search"

	DefaultLimit     = 10
	DefaultMaxLimit  = 100
	DefaultOverFetch = 3
)

var (
	// ErrEmptyQuery is returned for a blank query
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrNoEmbedder is returned when the searcher has no way to embed queries
	ErrNoEmbedder = errors.New("embedder not initialized")
)

// DocumentTag is the cache tag shared by every response that includes the document
func DocumentTag(id int64) string {
	return "doc:" + strconv.FormatInt(id, 10)
}

// QueryEmbedder turns a query into a vector. *embedder.Pipeline satisfies it.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Config tunes the search service
type Config struct {
	DefaultLimit int
	MaxLimit     int
	OverFetch    int           // Raw hits fetched per requested result
	CacheTTL     time.Duration // 0 uses the cache's default
	MinOverlap   int
	GapMarker    string
}

// DefaultConfig returns the default search settings
func DefaultConfig() Config {
	return Config{
		DefaultLimit: DefaultLimit,
		MaxLimit:     DefaultMaxLimit,
		OverFetch:    DefaultOverFetch,
		CacheTTL:     cache.DefaultTTL,
		MinOverlap:   DefaultMinOverlap,
		GapMarker:    DefaultGapMarker,
	}
}

// Request contains parameters for a search operation
type Request struct {
	Query    string
	Limit    int
	UseCache bool
}

// Response contains grouped results and metadata
type Response struct {
	Query        string                `json:"query"`
	Results      []types.GroupedResult `json:"results"`
	TotalResults int                   `json:"total_results"`
	RawHits      int                   `json:"raw_hits"`
	Cached       bool                  `json:"cached"`
	Duration     time.Duration         `json:"-"`
}

// Searcher answers queries: embed, rank passages, assemble per-document
// results and memoize the response in the tagged cache
type Searcher struct {
	storage   storage.Storage
	embedder  QueryEmbedder
	cache     *cache.TaggedCache
	assembler *Assembler
	config    Config
	logger    *slog.Logger
}

// NewSearcher creates a new Searcher. cache may be nil to disable response caching.
func NewSearcher(store storage.Storage, emb QueryEmbedder, c *cache.TaggedCache, config Config, logger *slog.Logger) *Searcher {
	defaults := DefaultConfig()
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = defaults.DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = defaults.MaxLimit
	}
	if config.OverFetch <= 0 {
		config.OverFetch = defaults.OverFetch
	}
	if config.MinOverlap <= 0 {
		config.MinOverlap = defaults.MinOverlap
	}
	if config.GapMarker == "" {
		config.GapMarker = defaults.GapMarker
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Searcher{
		storage:   store,
		embedder:  emb,
		cache:     c,
		assembler: &Assembler{MinOverlap: config.MinOverlap, GapMarker: config.GapMarker},
		config:    config,
		logger:    logger,
	}
}

// Assembler returns the assembler used for grouping
func (s *Searcher) Assembler() *Assembler {
	return s.assembler
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	key := CacheKey(req.Query, req.Limit)
	log := s.logger.With("query", truncate(req.Query, 100), "limit", req.Limit)

	if req.UseCache && s.cache != nil {
		var cached Response
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn("search cache lookup failed, treating as miss", "error", err)
		}
		if found {
			log.Debug("search cache hit", "results", len(cached.Results))
			cached.Cached = true
			cached.Duration = time.Since(startTime)
			return &cached, nil
		}
	}

	vector, err := s.embedder.EmbedOne(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	if err := s.storage.InsertQuery(ctx, &types.Query{Text: req.Query, Vector: vector}); err != nil {
		log.Warn("failed to record query", "error", err)
	}

	hits, err := s.storage.SearchVector(ctx, vector, req.Limit*s.config.OverFetch)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := s.assembler.Assemble(hits, req.Limit)
	response := &Response{
		Query:        req.Query,
		Results:      results,
		TotalResults: len(results),
		RawHits:      len(hits),
	}

	if req.UseCache && s.cache != nil {
		tags := make([]string, 0, len(results)+1)
		tags = append(tags, SearchTag)
		for _, r := range results {
			tags = append(tags, DocumentTag(r.DocumentID))
		}
		if err := s.cache.Set(ctx, key, response, s.config.CacheTTL, tags...); err != nil {
			log.Warn("failed to cache search response", "error", err)
		}
	}

	response.Duration = time.Since(startTime)
	log.Info("search completed", "results", len(results), "raw_hits", len(hits), "duration", response.Duration)
	return response, nil
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *Request) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}

	if req.Limit <= 0 {
		req.Limit = s.config.DefaultLimit
	}

	if req.Limit > s.config.MaxLimit {
		req.Limit = s.config.MaxLimit
	}

	return nil
}

// InvalidateDocuments drops every cached response that includes one of the documents
func (s *Searcher) InvalidateDocuments(ctx context.Context, ids ...int64) (int, error) {
	if s.cache == nil || len(ids) == 0 {
		return 0, nil
	}
	tags := make([]string, len(ids))
	for i, id := range ids {
		tags[i] = DocumentTag(id)
	}
	s.logger.Info("invalidating search cache for documents", "documents", ids)
	return s.cache.InvalidateByTags(ctx, tags...)
}

// InvalidateAll drops every cached search response
func (s *Searcher) InvalidateAll(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	s.logger.Info("invalidating all search cache")
	return s.cache.InvalidateByTags(ctx, SearchTag)
}

// ClearCache removes every search key by pattern, including any whose tag sets already expired
func (s *Searcher) ClearCache(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.InvalidateByPattern(ctx, cache.SearchKeyPrefix+"*")
}

// CacheStats reports the response cache contents
func (s *Searcher) CacheStats(ctx context.Context) (cache.Stats, error) {
	if s.cache == nil {
		return cache.Stats{}, nil
	}
	return s.cache.Stats(ctx)
}

// PingCache checks the cache backing store. No cache is healthy.
func (s *Searcher) PingCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

// CacheKey is the cache key of a search response
func CacheKey(query string, limit int) string {
	sum := sha256.Sum256([]byte(query + "|" + strconv.Itoa(limit)))
	return cache.SearchKeyPrefix + hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
