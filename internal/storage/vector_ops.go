package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/docsearch/pkg/types"
)

const hitColumns = `p.document_id, d.title, p.idx, p.content`

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, q querier, queryVector []float32, limit int) ([]types.RankedHit, error) {
	if len(queryVector) != types.EmbeddingDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			types.ErrDimensionMismatch, len(queryVector), types.EmbeddingDimension)
	}
	if limit <= 0 {
		return []types.RankedHit{}, nil
	}

	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, queryVector, limit)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, q, queryVector, limit)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, q querier, queryVector []float32, limit int) ([]types.RankedHit, error) {
	// vec_distance_cosine returns a distance, lower is better
	query := `
		SELECT ` + hitColumns + `,
			1.0 - vec_distance_cosine(p.vector, ?) AS similarity
		FROM passages p
		INNER JOIN documents d ON d.id = p.document_id
		ORDER BY similarity DESC, p.document_id, p.idx
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, serializeVector(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]types.RankedHit, 0, limit)
	for rows.Next() {
		var hit types.RankedHit
		if err := rows.Scan(&hit.DocumentID, &hit.DocumentTitle, &hit.PassageIndex, &hit.Content, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hit.Similarity = clampSimilarity(hit.Similarity)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// searchVectorFallback performs vector search using Go-based cosine similarity computation
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, limit int) ([]types.RankedHit, error) {
	query := `
		SELECT ` + hitColumns + `, p.vector
		FROM passages p
		INNER JOIN documents d ON d.id = p.document_id
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]types.RankedHit, 0, 256)
	for rows.Next() {
		var hit types.RankedHit
		var blob []byte
		if err := rows.Scan(&hit.DocumentID, &hit.DocumentTitle, &hit.PassageIndex, &hit.Content, &blob); err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}
		hit.Similarity = clampSimilarity(cosineSimilarity(queryVector, vector))
		candidates = append(candidates, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortHits(candidates)

	if limit > len(candidates) {
		limit = len(candidates)
	}
	return candidates[:limit], nil
}

// sortHits orders hits by similarity descending; ties keep document and passage order
func sortHits(hits []types.RankedHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].PassageIndex < hits[j].PassageIndex
	})
}

// clampSimilarity absorbs float rounding that can push cosine just past ±1
func clampSimilarity(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
