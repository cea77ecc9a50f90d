// Package types provides shared type definitions for docsearch.
//
// This package defines the domain types passed between the ingest path, the
// storage layer and the search path.
//
// # Core Types
//
// Document is an ingested text with a title. Its text is split into Passages,
// overlapping windows that each carry a zero-based Index and an embedding:
//
//	passage := &types.Passage{
//	    DocumentID: doc.ID,
//	    Index:      0,
//	    Content:    "The cat sat on",
//	    Vector:     vector, // types.EmbeddingDimension floats
//	}
//
// Indices are contiguous per document and follow the original left-to-right
// order, so the text shared by passage i and i+1 can be stitched back together.
//
// # Search Results
//
// Vector search yields RankedHits, one per passage, ordered by descending
// cosine similarity. The search assembler folds them into one GroupedResult
// per document:
//
//	result := types.GroupedResult{
//	    DocumentID:   1,
//	    Content:      "The cat sat on the mat",
//	    Score:        0.875, // mean of the contributing hits
//	    ChunkIndices: []int{0, 1},
//	}
//
// # Validation
//
// Passages, hits and grouped results implement Validate:
//
//	if err := passage.Validate(); err != nil {
//	    return fmt.Errorf("invalid passage: %w", err)
//	}
package types
