package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/docsearch/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// A single connection keeps :memory: databases and PRAGMAs consistent
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Passages rely on ON DELETE CASCADE
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Document operations

// createDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createDocumentWithQuerier(ctx context.Context, q querier, doc *types.Document) error {
	if doc.Title == "" {
		return fmt.Errorf("failed to create document: %w", types.ErrEmptyContent)
	}

	now := time.Now()
	result, err := q.ExecContext(ctx, "INSERT INTO documents (title, created_at) VALUES (?, ?)", doc.Title, now)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	doc.ID = id
	doc.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *types.Document) error {
	return s.createDocumentWithQuerier(ctx, s.querier(), doc)
}

// getDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, id int64) (*types.Document, error) {
	var doc types.Document
	err := q.QueryRowContext(ctx, "SELECT id, title, created_at FROM documents WHERE id = ?", id).
		Scan(&doc.ID, &doc.Title, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id int64) (*types.Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), id)
}

// listDocumentsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*DocumentSummary, error) {
	query := `
		SELECT d.id, d.title, d.created_at, COUNT(p.id)
		FROM documents d
		LEFT JOIN passages p ON p.document_id = d.id
		GROUP BY d.id, d.title, d.created_at
		ORDER BY d.created_at DESC, d.id DESC
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*DocumentSummary
	for rows.Next() {
		var d DocumentSummary
		if err := rows.Scan(&d.ID, &d.Title, &d.CreatedAt, &d.PassageCount); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*DocumentSummary, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

// deleteDocumentWithQuerier removes a document; its passages go with it via ON DELETE CASCADE
func (s *SQLiteStorage) deleteDocumentWithQuerier(ctx context.Context, q querier, id int64) error {
	result, err := q.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id int64) error {
	return s.deleteDocumentWithQuerier(ctx, s.querier(), id)
}

// Passage operations

// insertPassageWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertPassageWithQuerier(ctx context.Context, q querier, p *types.Passage) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid passage: %w", err)
	}

	query := `
		INSERT INTO passages (document_id, idx, content, vector, dimension, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := q.ExecContext(ctx, query,
		p.DocumentID, p.Index, p.Content, serializeVector(p.Vector), len(p.Vector), time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert passage %d: %w", p.Index, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *SQLiteStorage) InsertPassage(ctx context.Context, passage *types.Passage) error {
	return s.insertPassageWithQuerier(ctx, s.querier(), passage)
}

// listPassagesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listPassagesWithQuerier(ctx context.Context, q querier, documentID int64) ([]*types.Passage, error) {
	query := `
		SELECT id, document_id, idx, content, vector
		FROM passages
		WHERE document_id = ?
		ORDER BY idx
	`
	rows, err := q.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list passages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var passages []*types.Passage
	for rows.Next() {
		var p types.Passage
		var blob []byte
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Index, &p.Content, &blob); err != nil {
			return nil, err
		}
		p.Vector = deserializeVector(blob)
		passages = append(passages, &p)
	}
	return passages, rows.Err()
}

func (s *SQLiteStorage) ListPassages(ctx context.Context, documentID int64) ([]*types.Passage, error) {
	return s.listPassagesWithQuerier(ctx, s.querier(), documentID)
}

// countPassagesWithQuerier counts passages of one document, or of all documents when documentID is 0
func (s *SQLiteStorage) countPassagesWithQuerier(ctx context.Context, q querier, documentID int64) (int, error) {
	var n int
	var err error
	if documentID == 0 {
		err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM passages").Scan(&n)
	} else {
		err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM passages WHERE document_id = ?", documentID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) CountPassages(ctx context.Context, documentID int64) (int, error) {
	return s.countPassagesWithQuerier(ctx, s.querier(), documentID)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, vector []float32, limit int) ([]types.RankedHit, error) {
	return searchVector(ctx, s.querier(), vector, limit)
}

// Query log operations

// insertQueryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertQueryWithQuerier(ctx context.Context, q querier, query *types.Query) error {
	if query.Text == "" {
		return fmt.Errorf("failed to log query: %w", types.ErrEmptyContent)
	}
	if query.SearchedAt.IsZero() {
		query.SearchedAt = time.Now()
	}

	result, err := q.ExecContext(ctx, "INSERT INTO queries (text, vector, searched_at) VALUES (?, ?, ?)",
		query.Text, serializeVector(query.Vector), query.SearchedAt)
	if err != nil {
		return fmt.Errorf("failed to log query: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	query.ID = id
	return nil
}

func (s *SQLiteStorage) InsertQuery(ctx context.Context, query *types.Query) error {
	return s.insertQueryWithQuerier(ctx, s.querier(), query)
}

// listRecentQueriesWithQuerier returns the newest queries first
func (s *SQLiteStorage) listRecentQueriesWithQuerier(ctx context.Context, q querier, limit int) ([]*types.Query, error) {
	if limit <= 0 {
		return []*types.Query{}, nil
	}

	rows, err := q.QueryContext(ctx,
		"SELECT id, text, vector, searched_at FROM queries ORDER BY searched_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	queries := make([]*types.Query, 0, limit)
	for rows.Next() {
		var query types.Query
		var blob []byte
		if err := rows.Scan(&query.ID, &query.Text, &blob, &query.SearchedAt); err != nil {
			return nil, err
		}
		query.Vector = deserializeVector(blob)
		queries = append(queries, &query)
	}
	return queries, rows.Err()
}

func (s *SQLiteStorage) ListRecentQueries(ctx context.Context, limit int) ([]*types.Query, error) {
	return s.listRecentQueriesWithQuerier(ctx, s.querier(), limit)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&status.DocumentsCount); err != nil {
		return nil, err
	}

	passages, err := s.CountPassages(ctx, 0)
	if err != nil {
		return nil, err
	}
	status.PassagesCount = passages

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queries").Scan(&status.QueriesCount); err != nil {
		return nil, err
	}

	var last sql.NullTime
	err = s.db.QueryRowContext(ctx, "SELECT created_at FROM documents ORDER BY created_at DESC LIMIT 1").Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if last.Valid {
		status.LastIngestedAt = last.Time
	}

	// Calculate database size
	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	if v, err := SchemaVersion(ctx, s.db); err == nil {
		status.SchemaVersion = v
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: passages > 0,
	}

	return status, nil
}

// Transaction implementations

func (t *sqliteTx) CreateDocument(ctx context.Context, doc *types.Document) error {
	return t.storage.createDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) GetDocument(ctx context.Context, id int64) (*types.Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]*DocumentSummary, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, id int64) error {
	return t.storage.deleteDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) InsertPassage(ctx context.Context, passage *types.Passage) error {
	return t.storage.insertPassageWithQuerier(ctx, t.querier(), passage)
}

func (t *sqliteTx) ListPassages(ctx context.Context, documentID int64) ([]*types.Passage, error) {
	return t.storage.listPassagesWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) CountPassages(ctx context.Context, documentID int64) (int, error) {
	return t.storage.countPassagesWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, vector []float32, limit int) ([]types.RankedHit, error) {
	return searchVector(ctx, t.querier(), vector, limit)
}

func (t *sqliteTx) InsertQuery(ctx context.Context, query *types.Query) error {
	return t.storage.insertQueryWithQuerier(ctx, t.querier(), query)
}

func (t *sqliteTx) ListRecentQueries(ctx context.Context, limit int) ([]*types.Query, error) {
	return t.storage.listRecentQueriesWithQuerier(ctx, t.querier(), limit)
}

// GetStatus would read through the pool, whose only connection the transaction holds
func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return nil, errors.New("status is not available inside a transaction")
}

func (t *sqliteTx) Ping(ctx context.Context) error {
	return nil
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
