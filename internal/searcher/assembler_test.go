package searcher

import (
	"strings"
	"testing"

	"github.com/dshills/docsearch/internal/chunker"
	"github.com/dshills/docsearch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(doc int64, idx int, content string, sim float64) types.RankedHit {
	return types.RankedHit{
		DocumentID:    doc,
		DocumentTitle: "doc",
		PassageIndex:  idx,
		Content:       content,
		Similarity:    sim,
	}
}

func TestAssemble_MergesOverlappingPassages(t *testing.T) {
	a := &Assembler{MinOverlap: 6, GapMarker: DefaultGapMarker}
	hits := []types.RankedHit{
		hit(1, 0, "The cat sat on", 0.9),
		hit(1, 1, " sat on the mat", 0.85),
		hit(2, 0, "Unrelated text", 0.5),
	}

	results := a.Assemble(hits, 10)
	require.Len(t, results, 2)

	assert.Equal(t, int64(1), results[0].DocumentID)
	assert.Equal(t, "The cat sat on the mat", results[0].Content)
	assert.InDelta(t, 0.875, results[0].Score, 1e-9)
	assert.Equal(t, []int{0, 1}, results[0].ChunkIndices)

	assert.Equal(t, int64(2), results[1].DocumentID)
	assert.Equal(t, "Unrelated text", results[1].Content)
	assert.InDelta(t, 0.5, results[1].Score, 1e-9)
	assert.Equal(t, []int{0}, results[1].ChunkIndices)

	for _, r := range results {
		assert.NoError(t, r.Validate())
	}
}

func TestAssemble_GapMarkerBetweenNonContiguousRuns(t *testing.T) {
	a := &Assembler{MinOverlap: 4, GapMarker: " ... "}
	hits := []types.RankedHit{
		hit(1, 5, "far away passage", 0.7),
		hit(1, 0, "alpha beta", 0.8),
		hit(1, 1, "beta gamma", 0.6),
	}

	results := a.Assemble(hits, 5)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha beta gamma ... far away passage", results[0].Content)
	assert.Equal(t, []int{0, 1, 5}, results[0].ChunkIndices)
	assert.InDelta(t, 0.7, results[0].Score, 1e-9)
}

func TestAssemble_AdjacentRunsWithoutOverlapConcatenate(t *testing.T) {
	a := &Assembler{MinOverlap: 5, GapMarker: "|GAP|"}
	hits := []types.RankedHit{
		hit(1, 0, "first half, ", 0.5),
		hit(1, 1, "second half", 0.5),
	}

	results := a.Assemble(hits, 1)
	require.Len(t, results, 1)
	assert.Equal(t, "first half, second half", results[0].Content)
}

func TestAssemble_StableOrderAndLimit(t *testing.T) {
	a := NewAssembler()
	hits := []types.RankedHit{
		hit(3, 0, "three", 0.6),
		hit(1, 0, "one", 0.6),
		hit(2, 0, "two", 0.9),
		hit(4, 0, "four", 0.1),
	}

	results := a.Assemble(hits, 3)
	require.Len(t, results, 3)
	assert.Equal(t, int64(2), results[0].DocumentID)
	// Ties keep first-appearance order
	assert.Equal(t, int64(3), results[1].DocumentID)
	assert.Equal(t, int64(1), results[2].DocumentID)
}

func TestAssemble_CollapsesDuplicateHits(t *testing.T) {
	a := NewAssembler()
	hits := []types.RankedHit{
		hit(1, 0, "same passage", 0.9),
		hit(1, 0, "same passage", 0.3),
	}

	results := a.Assemble(hits, 10)
	require.Len(t, results, 1)
	assert.Equal(t, []int{0}, results[0].ChunkIndices)
	assert.Equal(t, "same passage", results[0].Content)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
}

func TestAssemble_EmptyInput(t *testing.T) {
	a := NewAssembler()
	assert.Empty(t, a.Assemble(nil, 10))
	assert.Empty(t, a.Assemble([]types.RankedHit{hit(1, 0, "x", 0.1)}, 0))
}

func TestSplitStitchRoundTrip(t *testing.T) {
	doc := pseudoText(1500)

	tests := []struct {
		name       string
		chunkSize  int
		overlap    int
		minOverlap int
	}{
		{"default sizes", chunker.DefaultChunkSize, chunker.DefaultOverlap, DefaultMinOverlap},
		{"small windows", 120, 30, 20},
		{"overlap equals min", 300, 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := chunker.Split(doc, tt.chunkSize, tt.overlap)
			require.NoError(t, err)
			require.Greater(t, len(parts), 1)

			// Reverse ranking order so the assembler has to sort by index
			hits := make([]types.RankedHit, len(parts))
			for i, p := range parts {
				hits[len(parts)-1-i] = hit(7, i, p, 0.5)
			}

			a := &Assembler{MinOverlap: tt.minOverlap, GapMarker: DefaultGapMarker}
			results := a.Assemble(hits, 1)
			require.Len(t, results, 1)
			assert.Equal(t, doc, results[0].Content)
			assert.Len(t, results[0].ChunkIndices, len(parts))

			assert.Equal(t, doc, Stitch(parts, tt.minOverlap))
		})
	}
}

// pseudoText builds a deterministic word soup with no long repeated runs
func pseudoText(words int) string {
	vocab := []string{
		"river", "lantern", "copper", "meadow", "signal", "harbor", "velvet", "orbit",
		"quartz", "ember", "thistle", "canyon", "mosaic", "falcon", "glacier", "pepper",
		"saddle", "tundra", "violet", "whistle", "anchor", "bramble", "cobalt", "dune",
		"echo", "fjord", "garnet", "hollow", "ivory", "jasper", "kettle", "lagoon",
	}
	var b strings.Builder
	seed := uint32(12345)
	for i := 0; i < words; i++ {
		seed = seed*1664525 + 1013904223
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(vocab[(seed>>16)%uint32(len(vocab))])
	}
	b.WriteString(".")
	return b.String()
}

func TestStitch(t *testing.T) {
	tests := []struct {
		name       string
		parts      []string
		minOverlap int
		want       string
	}{
		{"empty", nil, 3, ""},
		{"single", []string{"only"}, 3, "only"},
		{"overlap", []string{"hello wor", "world"}, 3, "hello world"},
		{"below minimum", []string{"ab", "bc"}, 2, "abbc"},
		{"multibyte", []string{"día de sol", "de sol y mar"}, 4, "día de sol y mar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stitch(tt.parts, tt.minOverlap))
		})
	}
}

func TestLongestOverlap(t *testing.T) {
	assert.Equal(t, 3, longestOverlap([]rune("abcabc"), []rune("abcx"), 2))
	assert.Equal(t, 0, longestOverlap([]rune("abc"), []rune("xyz"), 1))
	assert.Equal(t, 0, longestOverlap([]rune("ab"), []rune("bx"), 2))
	// Longest wins over shorter matches
	assert.Equal(t, 4, longestOverlap([]rune("xaaaa"), []rune("aaaay"), 1))
	// A passage shorter than the minimum joins when it is the end of prev
	assert.Equal(t, 2, longestOverlap([]rune("abcdef"), []rune("ef"), 5))
	assert.Equal(t, 0, longestOverlap([]rune("abcdef"), []rune("de"), 5))
	assert.Equal(t, 0, longestOverlap([]rune("abc"), nil, 2))
}

func TestAssemble_TailPassagesShorterThanMinOverlap(t *testing.T) {
	text := "abcdefghijk"
	parts, err := chunker.Split(text, 6, 4)
	require.NoError(t, err)
	require.Equal(t, []string{"abcdef", "cdefgh", "efghij", "ghijk", "ijk", "k"}, parts)

	hits := make([]types.RankedHit, len(parts))
	for i, p := range parts {
		hits[i] = hit(3, i, p, 0.4)
	}

	a := &Assembler{MinOverlap: 4, GapMarker: DefaultGapMarker}
	results := a.Assemble(hits, 5)
	require.Len(t, results, 1)
	assert.Equal(t, text, results[0].Content)
	assert.Equal(t, text, Stitch(parts, 4))
}

func BenchmarkAssemble(b *testing.B) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog number ", 400)
	parts, err := chunker.Split(text+"end.", 1500, 200)
	require.NoError(b, err)

	hits := make([]types.RankedHit, 0, 30)
	for i := 0; i < 30; i++ {
		p := parts[i%len(parts)]
		hits = append(hits, hit(int64(i%5+1), i, p, 0.5))
	}

	a := NewAssembler()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = a.Assemble(hits, 10)
	}
}
