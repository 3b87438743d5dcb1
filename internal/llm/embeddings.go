package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/sashabaranov/go-openai"

	"groundedqa/internal/apperr"
)

// EmbeddingsClient embeds text through an OpenAI-compatible /v1/embeddings endpoint.
type EmbeddingsClient struct {
	BaseURL      string
	ModelName    string
	ExpectedSize int // Every returned vector must have this length
	Policy       CallPolicy
	client       *openai.Client
}

// NewEmbeddingsClient creates a new embeddings client.
// expectedSize is the configured EMBEDDING_DIMENSION; vectors of any other
// length fail the call with apperr.ErrEmbedding.
func NewEmbeddingsClient(baseURL, apiKey, model string, expectedSize int, policy CallPolicy) *EmbeddingsClient {
	return &EmbeddingsClient{
		BaseURL:      baseURL,
		ModelName:    model,
		ExpectedSize: expectedSize,
		Policy:       policy,
		client:       newOpenAIClient(baseURL, apiKey, http.DefaultClient),
	}
}

// Dimension returns the expected vector size.
func (c *EmbeddingsClient) Dimension() int {
	return c.ExpectedSize
}

// Model returns the embedding model identifier.
func (c *EmbeddingsClient) Model() string {
	return c.ModelName
}

// Embed generates embeddings for the given texts.
// Returns one float32 vector per input text, in input order.
func (c *EmbeddingsClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := withRetry(ctx, c.Policy, "embedding", func(ctx context.Context) ([][]float32, error) {
		return c.embedOnce(ctx, texts)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrEmbedding, err, fmt.Sprintf("failed to embed %d texts with %s", len(texts), c.ModelName))
	}
	return vectors, nil
}

func (c *EmbeddingsClient) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.ModelName),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	// Servers may return data out of order; Index is authoritative.
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	result := make([][]float32, len(data))
	for i, d := range data {
		if d.Index != i {
			return nil, permanent(fmt.Errorf("embedding response is missing index %d", i))
		}
		if len(d.Embedding) != c.ExpectedSize {
			return nil, permanent(&apperr.DimensionMismatchError{Expected: c.ExpectedSize, Got: len(d.Embedding)})
		}
		vec := make([]float32, len(d.Embedding))
		copy(vec, d.Embedding)
		result[i] = vec
	}

	return result, nil
}
