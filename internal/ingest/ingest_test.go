package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dshills/docsearch/internal/chunker"
	"github.com/dshills/docsearch/internal/embedder"
	"github.com/dshills/docsearch/internal/logging"
	"github.com/dshills/docsearch/internal/storage"
	"github.com/dshills/docsearch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder embeds every text onto the same vector, failing texts that contain failOn
type stubEmbedder struct {
	failOn string
	mu     sync.Mutex
	texts  []string
}

func (s *stubEmbedder) EmbedAll(ctx context.Context, texts []string) []embedder.Result {
	s.mu.Lock()
	s.texts = append(s.texts, texts...)
	s.mu.Unlock()

	results := make([]embedder.Result, len(texts))
	for i, text := range texts {
		results[i].Index = i
		if s.failOn != "" && strings.Contains(text, s.failOn) {
			results[i].Err = errors.New("provider unavailable")
			continue
		}
		v := make([]float32, types.EmbeddingDimension)
		v[0] = 1
		results[i].Vector = v
	}
	return results
}

type stubInvalidator struct {
	mu      sync.Mutex
	all     int
	deleted []int64
}

func (s *stubInvalidator) InvalidateAll(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all++
	return 0, nil
}

func (s *stubInvalidator) InvalidateDocuments(_ context.Context, ids ...int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, ids...)
	return len(ids), nil
}

func setupTestService(t *testing.T, emb PassageEmbedder) (*Service, *storage.SQLiteStorage, *stubInvalidator) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c, err := chunker.New(20, 5)
	require.NoError(t, err)

	inv := &stubInvalidator{}
	return NewService(store, c, emb, inv, logging.Discard()), store, inv
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	svc, store, inv := setupTestService(t, &stubEmbedder{})

	text := "The quick brown fox jumps over the lazy dog and runs away."
	res, err := svc.Ingest(ctx, "  Fox  ", text)
	require.NoError(t, err)

	assert.Equal(t, "Fox", res.Title)
	assert.Equal(t, 0, res.Failed)
	assert.Positive(t, res.DocumentID)

	passages, err := store.ListPassages(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, passages, res.Passages)

	want, err := chunker.Split(text, 20, 5)
	require.NoError(t, err)
	require.Len(t, passages, len(want))
	for i, p := range passages {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, want[i], p.Content)
	}

	assert.Equal(t, 1, inv.all)
}

func TestIngest_EmptyDocument(t *testing.T) {
	svc, _, _ := setupTestService(t, &stubEmbedder{})

	tests := []struct {
		name  string
		title string
		text  string
	}{
		{"blank title", "  ", "some text"},
		{"blank text", "Title", " \n\t"},
		{"both empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tt.title, tt.text)
			assert.ErrorIs(t, err, ErrEmptyDocument)
		})
	}
}

func TestIngest_PartialFailure(t *testing.T) {
	ctx := context.Background()
	emb := &stubEmbedder{failOn: "POISON"}
	svc, store, _ := setupTestService(t, emb)

	// 20-rune windows advancing by 15; the second window is the only one containing POISON
	text := "aaaaaaaaaaaaaaaaaaaabbbbbbPOISONbbbbbbbbcccccccccccccccccccccccccccc"
	res, err := svc.Ingest(ctx, "Mixed", text)
	require.Error(t, err)
	require.NotNil(t, res)

	assert.ErrorIs(t, err, ErrPartialIngest)
	var partial *PartialIngestError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, res.DocumentID, partial.DocumentID)
	assert.Equal(t, res.Passages, partial.Succeeded)
	require.NotEmpty(t, partial.Items)

	var item ItemError
	require.True(t, errors.As(err, &item))

	passages, err := store.ListPassages(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Len(t, passages, res.Passages)
	assert.Equal(t, len(partial.Items), res.Failed)

	// Stored passages keep their original index
	failed := make(map[int]bool)
	for _, it := range partial.Items {
		failed[it.Index] = true
	}
	for _, p := range passages {
		assert.False(t, failed[p.Index])
		assert.NotContains(t, p.Content, "POISON")
	}
}

func TestIngest_AllFailed(t *testing.T) {
	ctx := context.Background()
	svc, store, inv := setupTestService(t, &stubEmbedder{failOn: " "})

	_, err := svc.Ingest(ctx, "Doomed", "a b c d e f g h i j k l m n o p q r s t u v w x y z")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIngestFailed)
	assert.NotErrorIs(t, err, ErrPartialIngest)

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, inv.all)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, store, inv := setupTestService(t, &stubEmbedder{})

	res, err := svc.Ingest(ctx, "Short", "tiny document")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, res.DocumentID))
	assert.Equal(t, []int64{res.DocumentID}, inv.deleted)

	count, err := store.CountPassages(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Zero(t, count)

	err = svc.Delete(ctx, res.DocumentID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Len(t, inv.deleted, 1)
}

func TestNewService_NilInvalidator(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	svc := NewService(store, nil, &stubEmbedder{}, nil, nil)
	res, err := svc.Ingest(context.Background(), "Doc", "hello world")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), res.DocumentID))
}

func TestRunLock(t *testing.T) {
	var l RunLock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}
