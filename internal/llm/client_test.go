package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedqa/internal/apperr"
)

func writeChat(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "test-id",
		"object": "chat.completion",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:11434", "test-key", "test-model", CallPolicy{Timeout: time.Second})
	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.BaseURL != "http://localhost:11434" {
		t.Errorf("NewClient() BaseURL = %v, want http://localhost:11434", client.BaseURL)
	}
	if client.Model != "test-model" {
		t.Errorf("NewClient() Model = %v, want test-model", client.Model)
	}
	if client.client == nil {
		t.Error("NewClient() client should not be nil")
	}
}

func TestClient_Chat(t *testing.T) {
	var gotBody struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature *float64  `json:"temperature"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected /v1/chat/completions, got %s", r.URL.Path)
		}
		if !strings.Contains(r.Header.Get("Authorization"), "Bearer") {
			t.Error("missing Authorization header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		writeChat(w, "  Hi there!  ")
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model", CallPolicy{})
	reply, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "instructions"},
		{Role: RoleUser, Content: "Hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", reply)

	assert.Equal(t, "test-model", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, RoleSystem, gotBody.Messages[0].Role)
	assert.Equal(t, "Hello", gotBody.Messages[1].Content)
	require.NotNil(t, gotBody.Temperature, "temperature must be sent explicitly")
	assert.Less(t, *gotBody.Temperature, 1e-30)
}

func TestClient_Chat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		serverResp func(w http.ResponseWriter, r *http.Request)
	}{
		{
			name: "no choices returned",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
			},
		},
		{
			name: "empty content",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				writeChat(w, "   ")
			},
		},
		{
			name: "server error",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.serverResp(w, r)
			}))
			defer server.Close()

			client := NewClient(server.URL, "", "test-model", CallPolicy{Retry: true})
			_, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}})
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrGeneration)
			assert.Equal(t, int32(2), calls.Load(), "exactly one retry")
		})
	}
}

func TestClient_Chat_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "test-model", CallPolicy{Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrGeneration)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_Chat_CancelledNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeChat(w, "late")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, "", "test-model", CallPolicy{Retry: true})
	_, err := client.Chat(ctx, []Message{{Role: RoleUser, Content: "Hello"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "error %v should carry context.Canceled", err)
	assert.LessOrEqual(t, calls.Load(), int32(1))
}

func TestClient_Chat_NoMessages(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", "", "test-model", CallPolicy{})
	_, err := client.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, apperr.ErrConfig)
}
