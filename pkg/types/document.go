package types

import (
	"fmt"
	"time"
)

// EmbeddingDimension is the fixed dimensionality of every stored vector
const EmbeddingDimension = 768

// Document represents an ingested text document
type Document struct {
	ID        int64
	Title     string
	CreatedAt time.Time
}

// Passage represents one overlapping window of a document's text
type Passage struct {
	// Identification
	ID         int64
	DocumentID int64
	Index      int // Zero-based, contiguous within the document

	// Content
	Content string
	Vector  []float32
}

// Query represents a logged search query and its embedding
type Query struct {
	ID         int64
	Text       string
	Vector     []float32
	SearchedAt time.Time
}

// Validate checks if the passage can be persisted
func (p *Passage) Validate() error {
	if p.DocumentID <= 0 {
		return ErrInvalidDocumentID
	}

	if p.Index < 0 {
		return ErrInvalidPassageIndex
	}

	if p.Content == "" {
		return ErrEmptyContent
	}

	if len(p.Vector) != EmbeddingDimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(p.Vector), EmbeddingDimension)
	}

	return nil
}
