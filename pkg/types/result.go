package types

// RankedHit is a passage returned by vector search together with its similarity
// to the query and its owning document's identity
type RankedHit struct {
	DocumentID    int64
	DocumentTitle string
	PassageIndex  int
	Content       string
	Similarity    float64 // Cosine similarity in [-1, 1], higher is more similar
}

// GroupedResult is one document's entry in a search response
type GroupedResult struct {
	DocumentID    int64   `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Content       string  `json:"content"`       // Merged passage text
	Score         float64 `json:"score"`         // Mean similarity of contributing hits
	ChunkIndices  []int   `json:"chunk_indices"` // Sorted ascending
}

// Validate checks if the ranked hit is valid
func (h *RankedHit) Validate() error {
	if h.DocumentID <= 0 {
		return ErrInvalidDocumentID
	}

	if h.PassageIndex < 0 {
		return ErrInvalidPassageIndex
	}

	if h.Similarity < -1 || h.Similarity > 1 {
		return ErrInvalidScore
	}

	return nil
}

// Validate checks if the grouped result is valid
func (g *GroupedResult) Validate() error {
	if g.DocumentID <= 0 {
		return ErrInvalidDocumentID
	}

	if len(g.ChunkIndices) == 0 {
		return ErrNoChunkIndices
	}

	if g.Content == "" {
		return ErrEmptyContent
	}

	if g.Score < -1 || g.Score > 1 {
		return ErrInvalidScore
	}

	return nil
}
