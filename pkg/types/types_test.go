package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPassageValidate(t *testing.T) {
	vec := make([]float32, EmbeddingDimension)

	tests := []struct {
		name    string
		passage Passage
		wantErr error
	}{
		{"valid", Passage{DocumentID: 1, Index: 0, Content: "text", Vector: vec}, nil},
		{"missing document", Passage{Index: 0, Content: "text", Vector: vec}, ErrInvalidDocumentID},
		{"negative index", Passage{DocumentID: 1, Index: -1, Content: "text", Vector: vec}, ErrInvalidPassageIndex},
		{"empty content", Passage{DocumentID: 1, Vector: vec}, ErrEmptyContent},
		{"short vector", Passage{DocumentID: 1, Content: "text", Vector: vec[:3]}, ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.passage.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRankedHitValidate(t *testing.T) {
	assert.NoError(t, (&RankedHit{DocumentID: 1, Similarity: -1}).Validate())
	assert.ErrorIs(t, (&RankedHit{Similarity: 0.5}).Validate(), ErrInvalidDocumentID)
	assert.ErrorIs(t, (&RankedHit{DocumentID: 1, PassageIndex: -2}).Validate(), ErrInvalidPassageIndex)
	assert.ErrorIs(t, (&RankedHit{DocumentID: 1, Similarity: 1.01}).Validate(), ErrInvalidScore)
}

func TestGroupedResultValidate(t *testing.T) {
	valid := GroupedResult{DocumentID: 1, Content: "x", Score: 0.5, ChunkIndices: []int{0}}
	assert.NoError(t, valid.Validate())

	noChunks := valid
	noChunks.ChunkIndices = nil
	assert.ErrorIs(t, noChunks.Validate(), ErrNoChunkIndices)

	empty := valid
	empty.Content = ""
	assert.ErrorIs(t, empty.Validate(), ErrEmptyContent)

	badScore := valid
	badScore.Score = -1.5
	assert.ErrorIs(t, badScore.Validate(), ErrInvalidScore)
}
