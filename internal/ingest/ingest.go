package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dshills/docsearch/internal/chunker"
	"github.com/dshills/docsearch/internal/embedder"
	"github.com/dshills/docsearch/internal/storage"
	"github.com/dshills/docsearch/pkg/types"
)

var (
	// ErrPartialIngest marks an ingest where some passages were stored and some were not
	ErrPartialIngest = errors.New("partial ingest")
	// ErrIngestFailed is returned when no passage of a document could be stored
	ErrIngestFailed = errors.New("ingest failed")
	// ErrEmptyDocument is returned for a blank title or body
	ErrEmptyDocument = errors.New("document title and text are required")
)

// ItemError is the failure of one passage
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("passage %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// PartialIngestError lists the passages that could not be stored for a
// document whose other passages were
type PartialIngestError struct {
	DocumentID int64
	Succeeded  int
	Items      []ItemError
}

func (e *PartialIngestError) Error() string {
	return fmt.Sprintf("%v: document %d stored %d of %d passages",
		ErrPartialIngest, e.DocumentID, e.Succeeded, e.Succeeded+len(e.Items))
}

// Unwrap exposes ErrPartialIngest and every item error to errors.Is
func (e *PartialIngestError) Unwrap() []error {
	errs := make([]error, 0, len(e.Items)+1)
	errs = append(errs, ErrPartialIngest)
	for _, item := range e.Items {
		errs = append(errs, item)
	}
	return errs
}

// PassageEmbedder embeds every text, reporting per-text failures.
// *embedder.Pipeline satisfies it.
type PassageEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) []embedder.Result
}

// CacheInvalidator drops cached search responses. *searcher.Searcher satisfies it.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) (int, error)
	InvalidateDocuments(ctx context.Context, ids ...int64) (int, error)
}

// Result describes one ingested document
type Result struct {
	DocumentID int64         `json:"document_id"`
	Title      string        `json:"title"`
	Passages   int           `json:"passages"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"-"`
}

// Service coordinates the ingest pipeline: split -> embed -> store
type Service struct {
	storage     storage.Storage
	chunker     *chunker.Chunker
	embedder    PassageEmbedder
	invalidator CacheInvalidator
	logger      *slog.Logger
	runLock     RunLock
}

// NewService creates an ingest service. invalidator may be nil when no
// response cache is in use.
func NewService(store storage.Storage, c *chunker.Chunker, emb PassageEmbedder, inv CacheInvalidator, logger *slog.Logger) *Service {
	if c == nil {
		c = chunker.NewDefault()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		storage:     store,
		chunker:     c,
		embedder:    emb,
		invalidator: inv,
		logger:      logger,
	}
}

// Ingest splits text into passages, embeds them and stores the document.
//
// Passages that cannot be embedded or stored are skipped and reported in a
// *PartialIngestError returned next to a non-nil Result. Stored passages keep
// their original index, so a gap marks what is missing. When no passage
// succeeds nothing is stored and an ErrIngestFailed error is returned.
func (s *Service) Ingest(ctx context.Context, title, text string) (*Result, error) {
	start := time.Now()
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	parts := s.chunker.Split(text)
	log := s.logger.With("title", title, "passages", len(parts))
	log.Info("ingesting document")

	results := s.embedder.EmbedAll(ctx, parts)

	var items []ItemError
	embedded := 0
	for i, r := range results {
		if r.Err != nil {
			items = append(items, ItemError{Index: i, Err: r.Err})
			continue
		}
		embedded++
	}
	if embedded == 0 {
		return nil, fmt.Errorf("%w: no passage of %q could be embedded: %w", ErrIngestFailed, title, joinItems(items))
	}

	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	doc := &types.Document{Title: title}
	if err := tx.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestFailed, err)
	}

	stored := 0
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		p := &types.Passage{DocumentID: doc.ID, Index: i, Content: parts[i], Vector: r.Vector}
		if err := tx.InsertPassage(ctx, p); err != nil {
			items = append(items, ItemError{Index: i, Err: err})
			continue
		}
		stored++
	}
	if stored == 0 {
		return nil, fmt.Errorf("%w: no passage of %q could be stored: %w", ErrIngestFailed, title, joinItems(items))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit document: %w", err)
	}

	// New content can change any cached ranking
	if s.invalidator != nil {
		if _, err := s.invalidator.InvalidateAll(ctx); err != nil {
			log.Warn("failed to invalidate search cache", "error", err)
		}
	}

	result := &Result{
		DocumentID: doc.ID,
		Title:      title,
		Passages:   stored,
		Failed:     len(items),
		Duration:   time.Since(start),
	}

	if len(items) > 0 {
		// Insert failures were appended after embed failures
		sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })
		log.Warn("document partially ingested", "document_id", doc.ID, "stored", stored, "failed", len(items))
		return result, &PartialIngestError{DocumentID: doc.ID, Succeeded: stored, Items: items}
	}

	log.Info("document ingested", "document_id", doc.ID, "duration", result.Duration)
	return result, nil
}

// Delete removes a document and its passages, then drops cached responses that included it
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}

	if s.invalidator != nil {
		if _, err := s.invalidator.InvalidateDocuments(ctx, id); err != nil {
			s.logger.Warn("failed to invalidate search cache", "document_id", id, "error", err)
		}
	}

	s.logger.Info("document deleted", "document_id", id)
	return nil
}

func joinItems(items []ItemError) error {
	errs := make([]error, len(items))
	for i, item := range items {
		errs[i] = item
	}
	return errors.Join(errs...)
}
