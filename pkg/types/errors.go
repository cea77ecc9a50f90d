package types

import "errors"

// Domain errors for type validation
var (
	// Passage errors
	ErrInvalidDocumentID   = errors.New("invalid document ID")
	ErrInvalidPassageIndex = errors.New("passage index must be >= 0")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")

	// Search result errors
	ErrInvalidScore   = errors.New("similarity score must be between -1 and 1")
	ErrNoChunkIndices = errors.New("grouped result has no contributing chunks")
	ErrEmptyContent   = errors.New("content cannot be empty")
)
