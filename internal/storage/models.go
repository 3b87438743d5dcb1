package storage

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// chunkNamespace scopes deterministic chunk IDs (UUIDv5).
var chunkNamespace = uuid.MustParse("6f1c9a52-58a4-4c36-9c1e-2f0d7b7a8e11")

// Chunk is a bounded contiguous span of one source document.
// Offset and Length are measured in runes.
type Chunk struct {
	ID     string // UUIDv5 of source and offset (same as Qdrant point ID)
	Source string // Source identifier, e.g. "faq/billing.txt"
	Text   string // Chunk text content
	Offset int    // Rune offset within the source text
	Length int    // Rune count of Text
}

// NewChunk validates and constructs a Chunk.
func NewChunk(source, text string, offset int) (Chunk, error) {
	if strings.TrimSpace(source) == "" {
		return Chunk{}, fmt.Errorf("chunk source is required")
	}
	if text == "" {
		return Chunk{}, fmt.Errorf("chunk text is empty (source %s, offset %d)", source, offset)
	}
	if offset < 0 {
		return Chunk{}, fmt.Errorf("chunk offset must be >= 0, got %d", offset)
	}
	return Chunk{
		ID:     ChunkID(source, offset),
		Source: source,
		Text:   text,
		Offset: offset,
		Length: utf8.RuneCountInString(text),
	}, nil
}

// ChunkID returns the deterministic identifier of the chunk starting at offset in source.
func ChunkID(source string, offset int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", source, offset))).String()
}

// Record pairs a chunk with its embedding.
type Record struct {
	Chunk  Chunk
	Vector []float32
}

// Meta describes a persisted index so a loader can validate compatibility.
type Meta struct {
	FormatVersion  int
	Metric         string
	Dimension      int
	EmbeddingModel string
	ChunkSize      int
	ChunkOverlap   int
	ChunkerVersion string
	IndexVersion   string // Hash of chunker version, embedding model and chunking params
	ChunkCount     int
	BuiltAt        time.Time
}
