package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"groundedqa/internal/apperr"
)

// zeroTemperature is sent instead of 0, which go-openai drops as an empty
// field and lets the server fall back to its own default temperature.
const zeroTemperature = math.SmallestNonzeroFloat32

// Client is a client for an OpenAI-compatible chat completions API.
// Every request is sent with temperature zero.
type Client struct {
	BaseURL string
	Model   string
	Policy  CallPolicy
	client  *openai.Client
}

// NewClient creates a new LLM client.
func NewClient(baseURL, apiKey, model string, policy CallPolicy) *Client {
	return &Client{
		BaseURL: baseURL,
		Model:   model,
		Policy:  policy,
		client:  newOpenAIClient(baseURL, apiKey, http.DefaultClient),
	}
}

// Chat sends the messages as one chat completion request and returns the
// first choice's content. Failures, including timeouts, are apperr.ErrGeneration.
// Cancelling ctx aborts the in-flight HTTP request.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", apperr.Configf("chat request has no messages")
	}

	reply, err := withRetry(ctx, c.Policy, "generation", func(ctx context.Context) (string, error) {
		return c.chatOnce(ctx, messages)
	})
	if err != nil {
		return "", apperr.Wrap(apperr.ErrGeneration, err, fmt.Sprintf("failed to generate with %s", c.Model))
	}
	return reply, nil
}

func (c *Client) chatOnce(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: zeroTemperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty completion (finish reason %q)", resp.Choices[0].FinishReason)
	}
	return content, nil
}
