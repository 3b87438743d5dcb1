package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"groundedqa/internal/contextutil"
	"groundedqa/internal/service"
)

// ResourceProvider exposes the query resources. *service.Resources implements it.
type ResourceProvider interface {
	Get(ctx context.Context) (*service.Shared, error)
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	resources ResourceProvider
	backend   string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(resources ResourceProvider, backend string) *HealthHandler {
	return &HealthHandler{
		resources: resources,
		backend:   backend,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy" or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Index backend in use: "file" or "qdrant"
	Backend string `json:"backend"`

	IndexLoaded bool `json:"index_loaded"`
	Chunks      int  `json:"chunks"`
	Dimension   int  `json:"dimension"`

	// Load failure, only present when unhealthy
	Error string `json:"error,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
// Returns 200 OK once the index is loaded, 503 Service Unavailable if loading failed.
//
// swagger:route GET /api/health healthCheck
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Backend:   h.backend,
	}
	httpStatus := http.StatusOK

	shared, err := h.resources.Get(ctx)
	if err != nil {
		logger.WarnContext(ctx, "query resources unavailable", "error", err)
		response.Status = "unhealthy"
		response.Error = err.Error()
		httpStatus = http.StatusServiceUnavailable
	} else {
		response.IndexLoaded = true
		response.Chunks = shared.Searcher.Len()
		response.Dimension = shared.Searcher.Dimension()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.ErrorContext(ctx, "failed to encode health response", "error", err)
	}
}
