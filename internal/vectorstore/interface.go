package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_searcher.go -package=mocks groundedqa/internal/vectorstore Searcher

import (
	"context"

	"groundedqa/internal/storage"
)

// MetricCosine is the only similarity metric indexes are built and searched with.
const MetricCosine = "cosine"

// Result is one search hit.
type Result struct {
	Chunk    storage.Chunk
	Score    float32 // Cosine similarity, higher is closer
	Rank     int     // 1-based rank in the result list
	Position int     // Insertion position in the index, used to break score ties
}

// Searcher answers k-nearest-neighbour queries. Implementations are read-only
// after construction and safe for concurrent use.
type Searcher interface {
	// Search returns min(k, Len()) results ordered by score descending,
	// ties broken by insertion position.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)

	// Dimension is the vector length the index was built with.
	Dimension() int

	// Len is the number of indexed chunks.
	Len() int
}
