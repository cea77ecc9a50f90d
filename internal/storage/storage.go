package storage

import (
	"context"
	"time"

	"github.com/dshills/docsearch/pkg/types"
)

// Storage defines the interface for persisting documents, passages and the query log
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id int64) (*types.Document, error)
	ListDocuments(ctx context.Context) ([]*DocumentSummary, error)
	DeleteDocument(ctx context.Context, id int64) error

	// Passage operations
	InsertPassage(ctx context.Context, passage *types.Passage) error
	ListPassages(ctx context.Context, documentID int64) ([]*types.Passage, error)
	CountPassages(ctx context.Context, documentID int64) (int, error)

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int) ([]types.RankedHit, error)

	// Query log operations
	InsertQuery(ctx context.Context, query *types.Query) error
	ListRecentQueries(ctx context.Context, limit int) ([]*types.Query, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Ping(ctx context.Context) error
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// DocumentSummary is a document together with the number of passages stored for it
type DocumentSummary struct {
	types.Document
	PassageCount int
}

// Status contains statistics about the store
type Status struct {
	DocumentsCount int
	PassagesCount  int
	QueriesCount   int
	SizeMB         float64
	SchemaVersion  string
	LastIngestedAt time.Time
	Health         HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
}
