package embedder

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrTooManyTexts      = errors.New("too many texts for one provider call")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
)

// DefaultCacheSize is the number of vectors kept when no size is configured
const DefaultCacheSize = 10000

// Embedding is one vector and the model that produced it
type Embedding struct {
	Vector   []float32
	Provider string
	Model    string
}

// EmbeddingRequest asks for the vector of a single text
type EmbeddingRequest struct {
	Text  string
	Model string // empty means the provider's configured model
}

// BatchEmbeddingRequest asks for the vectors of several texts in one call
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

// BatchEmbeddingResponse holds one embedding per requested text, in order
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder is an embedding provider transport. Implementations make exactly
// one upstream call per method invocation; retry, rate limiting and caching
// live in Pipeline.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension is the length of every vector the provider returns
	Dimension() int

	Provider() string
	Model() string
	Close() error
}

// checkTexts rejects calls a provider would refuse anyway
func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrEmptyText)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: %d texts, max %d", ErrTooManyTexts, len(texts), MaxBatchSize)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text %d", ErrEmptyText, i)
		}
	}
	return nil
}

// cacheKey identifies a text inside one embedding space. Vectors from
// different providers or models are never interchangeable.
type cacheKey struct {
	provider string
	model    string
	digest   [sha256.Size]byte
}

func newCacheKey(provider, model, text string) cacheKey {
	return cacheKey{
		provider: provider,
		model:    model,
		digest:   sha256.Sum256([]byte(text)),
	}
}

// Cache is an LRU of vectors keyed by provider, model and content digest.
// A nil *Cache is valid and never hits.
type Cache struct {
	lru *lru.Cache[cacheKey, []float32]
}

// NewCache creates a cache holding at most size vectors
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	l, err := lru.New[cacheKey, []float32](size)
	if err != nil {
		panic(fmt.Sprintf("embedder: lru.New(%d): %v", size, err))
	}
	return &Cache{lru: l}
}

// Get returns a copy of the cached vector for text
func (c *Cache) Get(provider, model, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	vec, ok := c.lru.Get(newCacheKey(provider, model, text))
	if !ok {
		return nil, false
	}
	return append([]float32(nil), vec...), true
}

// Put stores a copy of vector for text
func (c *Cache) Put(provider, model, text string, vector []float32) {
	if c == nil || len(vector) == 0 {
		return
	}
	c.lru.Add(newCacheKey(provider, model, text), append([]float32(nil), vector...))
}

// Len is the number of cached vectors
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
