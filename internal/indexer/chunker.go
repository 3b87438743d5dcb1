package indexer

import (
	"strings"
	"unicode"

	"groundedqa/internal/apperr"
	"groundedqa/internal/corpus"
	"groundedqa/internal/storage"
)

const (
	// ChunkerVersion is the version identifier for the chunker implementation.
	// Update this when chunking logic changes significantly.
	ChunkerVersion = "v2.0"

	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// Chunker splits documents into overlapping windows of at most Size runes.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker creates a chunker after validating its parameters.
func NewChunker(size, overlap int) (*Chunker, error) {
	if err := validateParams(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{Size: size, Overlap: overlap}, nil
}

// Chunk splits doc with the chunker's size and overlap.
func (c *Chunker) Chunk(doc corpus.Document) ([]storage.Chunk, error) {
	return Split(doc, c.Size, c.Overlap)
}

// Split cuts doc into chunks of at most size runes, consecutive chunks
// sharing exactly overlap runes.
//
// A window starting at s ends at the last natural boundary in
// (s+overlap, s+size], preferring a paragraph break, then a sentence end,
// then whitespace, and cuts hard at s+size when none exists. The next window
// starts overlap runes before that end. The remainder becomes the last chunk
// once it fits.
//
// A blank document yields no chunks.
func Split(doc corpus.Document, size, overlap int) ([]storage.Chunk, error) {
	if err := validateParams(size, overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	runes := []rune(doc.Text)
	n := len(runes)

	var chunks []storage.Chunk
	start := 0
	for {
		end := n
		if n-start > size {
			end = boundary(runes, start+overlap, start+size)
		}

		chunk, err := storage.NewChunk(doc.Source, string(runes[start:end]), start)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)

		if end == n {
			return chunks, nil
		}
		start = end - overlap
	}
}

func validateParams(size, overlap int) error {
	if size <= 0 {
		return apperr.Configf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return apperr.Configf("chunk overlap must be >= 0, got %d", overlap)
	}
	if overlap >= size {
		return apperr.Configf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}
	return nil
}

// boundary returns the cut position in (lo, hi].
func boundary(runes []rune, lo, hi int) int {
	for _, isBoundary := range []func([]rune, int) bool{paragraphBreak, sentenceBreak, wordBreak} {
		for b := hi; b > lo; b-- {
			if isBoundary(runes, b) {
				return b
			}
		}
	}
	return hi
}

func paragraphBreak(runes []rune, b int) bool {
	return b >= 2 && runes[b-2] == '\n' && runes[b-1] == '\n'
}

func sentenceBreak(runes []rune, b int) bool {
	return b >= 2 && strings.ContainsRune(".!?", runes[b-2]) && unicode.IsSpace(runes[b-1])
}

func wordBreak(runes []rune, b int) bool {
	return b >= 1 && unicode.IsSpace(runes[b-1])
}
