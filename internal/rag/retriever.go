package rag

import (
	"context"
	"fmt"
	"strings"

	"groundedqa/internal/apperr"
	"groundedqa/internal/contextutil"
	"groundedqa/internal/llm"
	"groundedqa/internal/vectorstore"
)

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 3

// Retriever embeds a query and searches the index with it.
type Retriever struct {
	embedder llm.Embedder
	searcher vectorstore.Searcher
}

// NewRetriever creates a retriever over searcher. The embedder must be the one
// the index was built with.
func NewRetriever(embedder llm.Embedder, searcher vectorstore.Searcher) *Retriever {
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
	}
}

// Retrieve returns the k chunks most similar to query. Blank queries and
// non-positive k are rejected before the embedder is called.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]vectorstore.Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &apperr.ValidationError{Field: "question", Message: "must not be empty"}
	}
	if k <= 0 {
		return nil, apperr.Configf("k must be a positive integer, got %d", k)
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrEmbedding, err, "failed to embed question")
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding for question, got %d", apperr.ErrEmbedding, len(vectors))
	}

	results, err := r.searcher.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	if len(results) > 0 {
		logger.DebugContext(ctx, "retrieved chunks",
			"k", k,
			"results", len(results),
			"top_score", results[0].Score,
			"top_source", results[0].Chunk.Source,
		)
	}
	return results, nil
}
