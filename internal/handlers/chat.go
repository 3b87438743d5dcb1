package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"groundedqa/internal/apperr"
	"groundedqa/internal/contextutil"
	"groundedqa/internal/service"
)

// maxRequestBytes bounds the size of a chat request body.
const maxRequestBytes = 64 << 10

// ChatHandler handles HTTP requests for questions.
type ChatHandler struct {
	queryService service.QueryService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(queryService service.QueryService) *ChatHandler {
	return &ChatHandler{
		queryService: queryService,
	}
}

// ChatRequest represents the HTTP request payload for a question.
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse represents the HTTP response payload for a question.
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles HTTP requests for questions.
//
// swagger:route POST /api/chat askQuestion
//
// Answers a question from the indexed FAQ corpus.
//
// responses:
//
//	'200': ChatResponse
//	'400': ErrorResponse
//	'503': ErrorResponse
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	answer, err := h.queryService.Answer(ctx, service.QueryRequest{Question: req.Question})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to answer question")
		return
	}

	resp := ChatResponse{
		Answer:  answer.Answer,
		Sources: answer.Sources,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// handleServiceError maps service errors to appropriate HTTP status codes and responses.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "service error", "error", err)

	var validationErr *apperr.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	switch {
	case errors.Is(err, apperr.ErrConfig):
		writeError(w, http.StatusBadRequest, "Invalid configuration")
	case errors.Is(err, apperr.ErrEmbedding),
		errors.Is(err, apperr.ErrGeneration),
		errors.Is(err, apperr.ErrIndexNotFound),
		errors.Is(err, apperr.ErrDimensionMismatch):
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
