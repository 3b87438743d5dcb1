package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks groundedqa/internal/llm Embedder

import "context"

// Message roles understood by OpenAI-compatible chat endpoints.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Embedder maps text to vectors of a fixed dimension.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of every vector Embed returns.
	Dimension() int

	// Model identifies the embedding model; it is recorded in the index metadata.
	Model() string
}
