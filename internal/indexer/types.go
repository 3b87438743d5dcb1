package indexer

import (
	"context"

	"groundedqa/internal/vectorstore"
)

// Options configures an index build.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Extensions   []string // Eligible corpus file extensions (default .txt, .md)
	BatchSize    int      // Texts per embedding call
	Concurrency  int      // Embedding calls in flight
}

// Mirror receives a copy of every successfully persisted index.
// *vectorstore.QdrantStore implements it.
type Mirror interface {
	ReplaceCollection(ctx context.Context, index *vectorstore.FlatIndex) error
}

// BuildReport summarizes an ingestion run.
type BuildReport struct {
	// DocsFound is the number of eligible files found in the corpus.
	DocsFound int `json:"docs_found"`
	// DocsLoaded is the number of files read successfully.
	DocsLoaded int `json:"docs_loaded"`
	// DocsSkipped is the number of eligible files that could not be read.
	DocsSkipped int `json:"docs_skipped"`
	// FilesIgnored is the number of files skipped for their extension.
	FilesIgnored int `json:"files_ignored"`
	// DocsWith0Chunks is the number of blank documents.
	DocsWith0Chunks int `json:"docs_with_0_chunks"`
	// ChunkCount is the number of chunks embedded into the index.
	ChunkCount int `json:"chunk_count"`
	// ChunkLengthStats describes chunk lengths in runes.
	ChunkLengthStats ChunkLengthStats `json:"chunk_length_stats"`

	SkippedSources []string `json:"skipped_sources,omitempty"`
	EmptySources   []string `json:"empty_sources,omitempty"`

	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
	// ChunkerVersion is the version of the chunker used.
	ChunkerVersion string `json:"chunker_version"`
	// IndexVersion is a hash identifying the index build (chunker + embedding model + params).
	IndexVersion string `json:"index_version"`
	IndexPath    string `json:"index_path"`
	Mirrored     bool   `json:"mirrored"`
}

// ChunkLengthStats contains statistics about chunk lengths.
type ChunkLengthStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}
