package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch/internal/ratelimit"
	"github.com/dshills/docsearch/pkg/types"
)

func vectorOf(v float32) []float32 {
	vec := make([]float32, types.EmbeddingDimension)
	for i := range vec {
		vec[i] = v
	}
	return vec
}

func TestGeminiProvider(t *testing.T) {
	t.Run("single embedding", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
			assert.True(t, strings.HasSuffix(r.URL.Path, "/models/text-embedding-004:embedContent"), r.URL.Path)

			var body geminiEmbedRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "models/text-embedding-004", body.Model)
			assert.Equal(t, "hello world", body.Content.Parts[0].Text)

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"embedding": map[string]interface{}{"values": vectorOf(0.5)},
			})
		}))
		defer server.Close()

		provider, err := NewGeminiProvider(ProviderOptions{APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)
		defer provider.Close()

		emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello world"})
		require.NoError(t, err)
		assert.Len(t, emb.Vector, types.EmbeddingDimension)
		assert.Equal(t, ProviderGemini, emb.Provider)
		assert.Equal(t, DefaultGeminiModel, emb.Model)
	})

	t.Run("batch embedding", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, ":batchEmbedContents"), r.URL.Path)

			var body struct {
				Requests []geminiEmbedRequest `json:"requests"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

			embeddings := make([]map[string]interface{}, len(body.Requests))
			for i := range body.Requests {
				embeddings[i] = map[string]interface{}{"values": vectorOf(float32(i))}
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": embeddings})
		}))
		defer server.Close()

		provider, err := NewGeminiProvider(ProviderOptions{APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)

		resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)
		for i, emb := range resp.Embeddings {
			assert.Equal(t, float32(i), emb.Vector[0])
		}
	})

	t.Run("throttling is marked", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`))
		}))
		defer server.Close()

		provider, err := NewGeminiProvider(ProviderOptions{APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ratelimit.ErrThrottled)
	})

	t.Run("resource exhausted body without 429", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`Resource has been exhausted: RESOURCE_EXHAUSTED`))
		}))
		defer server.Close()

		provider, err := NewGeminiProvider(ProviderOptions{APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ratelimit.ErrThrottled)
	})

	t.Run("server error is not throttling", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal", http.StatusInternalServerError)
		}))
		defer server.Close()

		provider, err := NewGeminiProvider(ProviderOptions{APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.NotErrorIs(t, err, ratelimit.ErrThrottled)
	})

	t.Run("wrong dimension rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"embedding": map[string]interface{}{"values": []float32{1, 2, 3}},
			})
		}))
		defer server.Close()

		provider, err := NewGeminiProvider(ProviderOptions{APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv(EnvGeminiAPIKey, "")
		_, err := NewGeminiProvider(ProviderOptions{})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})
}

func TestOpenAIProvider(t *testing.T) {
	t.Run("batch embedding restores input order", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(types.EmbeddingDimension), body["dimensions"])
			assert.Equal(t, DefaultOpenAIModel, body["model"])

			// Deliberately out of order
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"model": DefaultOpenAIModel,
				"data": []map[string]interface{}{
					{"index": 1, "embedding": vectorOf(1)},
					{"index": 0, "embedding": vectorOf(0)},
				},
			})
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(ProviderOptions{APIKey: "sk-test", BaseURL: server.URL + "/"})
		require.NoError(t, err)
		defer provider.Close()

		resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"first", "second"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)
		assert.Equal(t, float32(0), resp.Embeddings[0].Vector[0])
		assert.Equal(t, float32(1), resp.Embeddings[1].Vector[0])
		assert.Equal(t, ProviderOpenAI, resp.Embeddings[0].Provider)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("count mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"index": 0, "embedding": vectorOf(0)}},
			})
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(ProviderOptions{APIKey: "sk-test", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b"}})
		assert.ErrorIs(t, err, ErrProviderFailed)
	})

	t.Run("throttling is marked", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"Rate limit reached"}}`, http.StatusTooManyRequests)
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(ProviderOptions{APIKey: "sk-test", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ratelimit.ErrThrottled)
	})
}

func TestLocalProvider(t *testing.T) {
	provider, err := NewLocalProvider()
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()

	t.Run("provider metadata", func(t *testing.T) {
		assert.Equal(t, ProviderLocal, provider.Provider())
		assert.Equal(t, types.EmbeddingDimension, provider.Dimension())
		assert.NotEmpty(t, provider.Model())
	})

	t.Run("deterministic and normalized", func(t *testing.T) {
		a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "The cat sat on the mat"})
		require.NoError(t, err)
		b, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "The cat sat on the mat"})
		require.NoError(t, err)

		assert.Equal(t, a.Vector, b.Vector)
		assert.Len(t, a.Vector, types.EmbeddingDimension)

		var norm float64
		for _, v := range a.Vector {
			norm += float64(v * v)
		}
		assert.InDelta(t, 1.0, norm, 1e-4)
	})

	t.Run("shared vocabulary scores higher", func(t *testing.T) {
		query, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cat on a mat"})
		near, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "the cat sat on the mat"})
		far, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "quarterly revenue projections"})

		assert.Greater(t, dot(query.Vector, near.Vector), dot(query.Vector, far.Vector))
	})

	t.Run("batch", func(t *testing.T) {
		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"one", "two"}})
		require.NoError(t, err)
		assert.Len(t, resp.Embeddings, 2)
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: ""})
		assert.ErrorIs(t, err, ErrEmptyText)
	})
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i] * b[i])
	}
	return sum
}

func TestNormalizeVector(t *testing.T) {
	got := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}
