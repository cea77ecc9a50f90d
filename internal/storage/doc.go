// Package storage provides SQLite-based persistence for documents, their
// embedded passages, and the search query log.
//
// # Database Schema
//
// Tables:
//   - documents: Document identity and title
//   - passages: Overlapping text windows with their 768-dimension vectors
//   - queries: Every search query with its embedding
//   - schema_version: Applied migrations, ordered by semantic version
//
// Deleting a document removes its passages through ON DELETE CASCADE, so
// foreign keys are enabled on every connection.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.docsearch/docsearch.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	doc := &types.Document{Title: "Handbook"}
//	if err := db.CreateDocument(ctx, doc); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Passages of one document are written together:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	for _, p := range passages {
//	    if err := tx.InsertPassage(ctx, p); err != nil {
//	        return err
//	    }
//	}
//	return tx.Commit()
//
// # Vector Search
//
//	hits, err := db.SearchVector(ctx, queryVector, 30)
//	for _, hit := range hits {
//	    fmt.Printf("%s #%d: %.3f\n", hit.DocumentTitle, hit.PassageIndex, hit.Similarity)
//	}
//
// Hits come back ordered by descending cosine similarity. Ties are broken by
// document ID and passage index so results are stable across runs.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Similarity computed in SQL with vec_distance_cosine
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - Pure Go cosine similarity over all passages
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
