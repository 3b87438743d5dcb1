package llm

import (
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// newOpenAIClient builds a go-openai client for an OpenAI-compatible server
// (Ollama, llama.cpp, vLLM or OpenAI itself). baseURL may be given with or
// without the trailing /v1.
func newOpenAIClient(baseURL, apiKey string, httpClient *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = apiBaseURL(baseURL)
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

func apiBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL
	}
	return baseURL + "/v1"
}
