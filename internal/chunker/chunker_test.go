package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c, err := New(100, 20)
	require.NoError(t, err)
	assert.Equal(t, 100, c.ChunkSize())
	assert.Equal(t, 20, c.Overlap())

	d := NewDefault()
	assert.Equal(t, DefaultChunkSize, d.ChunkSize())
	assert.Equal(t, DefaultOverlap, d.Overlap())
}

func TestNew_InvalidParams(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
	}{
		{name: "overlap equals size", chunkSize: 10, overlap: 10},
		{name: "overlap exceeds size", chunkSize: 10, overlap: 11},
		{name: "zero size", chunkSize: 0, overlap: 0},
		{name: "negative overlap", chunkSize: 10, overlap: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.chunkSize, tt.overlap)
			assert.ErrorIs(t, err, ErrInvalidParams)

			_, err = Split("some text", tt.chunkSize, tt.overlap)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		chunkSize int
		overlap   int
		want      []string
	}{
		{
			name:      "empty text",
			text:      "",
			chunkSize: 10,
			overlap:   2,
			want:      nil,
		},
		{
			name:      "shorter than one window",
			text:      "hello",
			chunkSize: 10,
			overlap:   2,
			want:      []string{"hello"},
		},
		{
			name:      "exactly one window",
			text:      "0123456789",
			chunkSize: 10,
			overlap:   2,
			want:      []string{"0123456789", "89"},
		},
		{
			name:      "overlapping windows",
			text:      "The cat sat on the mat",
			chunkSize: 14,
			overlap:   6,
			want:      []string{"The cat sat on", "sat on the mat", "he mat"},
		},
		{
			name:      "short final window",
			text:      "abcdefghij",
			chunkSize: 4,
			overlap:   1,
			want:      []string{"abcd", "defg", "ghij", "j"},
		},
		{
			name:      "overlap only tail",
			text:      "abcdefghij",
			chunkSize: 4,
			overlap:   2,
			want:      []string{"abcd", "cdef", "efgh", "ghij", "ij"},
		},
		{
			name:      "default window on text of exactly one window",
			text:      strings.Repeat("x", DefaultChunkSize),
			chunkSize: DefaultChunkSize,
			overlap:   DefaultOverlap,
			want:      []string{strings.Repeat("x", DefaultChunkSize), strings.Repeat("x", DefaultOverlap)},
		},
		{
			name:      "no overlap",
			text:      "abcdefg",
			chunkSize: 3,
			overlap:   0,
			want:      []string{"abc", "def", "g"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.text, tt.chunkSize, tt.overlap)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplit_NeighborsShareOverlap(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	chunks, err := Split(text, 100, 25)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 0; i < len(chunks)-1; i++ {
		assert.Len(t, chunks[i], 100)
		tail := chunks[i][len(chunks[i])-25:]
		assert.True(t, strings.HasPrefix(chunks[i+1], tail), "chunk %d does not start with tail of chunk %d", i+1, i)
	}
}

func TestSplit_MultiByte(t *testing.T) {
	text := "héllo wörld ünïcode"
	chunks, err := Split(text, 6, 2)
	require.NoError(t, err)

	for _, c := range chunks {
		assert.True(t, len([]rune(c)) <= 6)
		assert.Equal(t, c, strings.ToValidUTF8(c, "?"))
	}
	assert.Equal(t, "héllo ", chunks[0])
}
