package chunker

import (
	"errors"
	"fmt"
)

const (
	// DefaultChunkSize is the default window length in characters
	DefaultChunkSize = 1500

	// DefaultOverlap is the default number of characters shared by neighboring windows
	DefaultOverlap = 200
)

// ErrInvalidParams is returned when the window configuration cannot make progress
var ErrInvalidParams = errors.New("invalid chunk parameters")

// Chunker splits document text into overlapping fixed-size windows
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a Chunker, failing fast on an unusable configuration
func New(chunkSize, overlap int) (*Chunker, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// NewDefault creates a Chunker with DefaultChunkSize and DefaultOverlap
func NewDefault() *Chunker {
	return &Chunker{chunkSize: DefaultChunkSize, overlap: DefaultOverlap}
}

// ChunkSize returns the configured window length
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Overlap returns the configured overlap
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split divides text into windows using the chunker's configuration
func (c *Chunker) Split(text string) []string {
	return split(text, c.chunkSize, c.overlap)
}

// Split divides text into windows of chunkSize characters, one starting every
// chunkSize-overlap characters until the end of the text. Windows near the end
// may be shorter, down to a tail made only of the previous window's overlap.
// Empty text yields no chunks.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	return split(text, chunkSize, overlap), nil
}

func validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidParams, chunkSize)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidParams, overlap)
	}
	if overlap >= chunkSize {
		return fmt.Errorf("%w: overlap %d must be less than chunk size %d", ErrInvalidParams, overlap, chunkSize)
	}
	return nil
}

// split works on runes so a window never cuts a multi-byte character in half
func split(text string, chunkSize, overlap int) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := chunkSize - overlap
	chunks := make([]string, 0, len(runes)/step+1)

	for start := 0; start < len(runes); start += step {
		end := min(start+chunkSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}
