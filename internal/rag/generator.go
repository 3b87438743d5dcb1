package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_rag.go -package=mocks groundedqa/internal/rag Generator,ChatClient

import (
	"context"
	"strings"

	"groundedqa/internal/apperr"
	"groundedqa/internal/llm"
)

// Generator produces the answer text for an assembled prompt.
//
// Contract: for a greeting it returns a short polite reply with no facts;
// for a question answered by the passages it answers from them only; otherwise
// it returns exactly FallbackAnswer. Failures carry apperr.ErrGeneration and
// are never replaced by FallbackAnswer.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// ChatClient is the chat completion capability. *llm.Client implements it.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// ChatGenerator delegates the grounding decision to a chat model.
type ChatGenerator struct {
	client ChatClient
}

// NewChatGenerator creates a generator backed by client.
func NewChatGenerator(client ChatClient) *ChatGenerator {
	return &ChatGenerator{client: client}
}

// Generate renders prompt into chat messages and returns the model's reply.
func (g *ChatGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	answer, err := g.client.Chat(ctx, prompt.Messages())
	if err != nil {
		return "", apperr.Wrap(apperr.ErrGeneration, err, "failed to generate answer")
	}
	return canonicalFallback(answer), nil
}

// typographicQuotes maps curly apostrophes models often emit to ASCII.
var typographicQuotes = strings.NewReplacer("\u2019", "'", "\u2018", "'", "\u02bc", "'")

// canonicalFallback returns FallbackAnswer when answer is the fallback
// sentence with different quoting or surrounding whitespace, and answer
// unchanged otherwise.
func canonicalFallback(answer string) string {
	if typographicQuotes.Replace(strings.TrimSpace(answer)) == FallbackAnswer {
		return FallbackAnswer
	}
	return answer
}
