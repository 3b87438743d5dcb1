package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"groundedqa/internal/apperr"
	"groundedqa/internal/config"
	"groundedqa/internal/http"
	"groundedqa/internal/metrics"
	"groundedqa/internal/service"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers customer questions from an indexed FAQ corpus, grounded in
// the retrieved passages.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Grounded QA API
//   description: |
//     Retrieval-augmented question answering over an FAQ corpus. Questions the
//     corpus does not cover get a fixed fallback answer.
//   version: 1.0.0
// schemes:
//   - http
// consumes:
//   - application/json
// produces:
//   - application/json

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resources := service.NewResources(service.ConfigLoader(cfg, m))
	defer func() {
		if err := resources.Close(); err != nil {
			slog.Warn("Failed to close index backend", "error", err)
		}
	}()

	// Load the index eagerly so a missing or incompatible index fails at startup.
	if _, err := resources.Get(ctx); err != nil {
		if errors.Is(err, apperr.ErrIndexNotFound) ||
			errors.Is(err, apperr.ErrDimensionMismatch) ||
			errors.Is(err, apperr.ErrConfig) {
			slog.Error("Failed to load index", "error", err)
			os.Exit(1)
		}
		slog.Error("Query resources unavailable, serving unhealthy", "error", err)
	}

	queryService := service.NewQueryService(resources, service.Options{
		K:        cfg.RetrievalK,
		MinScore: cfg.MinScore,
	}, m)

	router := http.NewRouter(&http.Deps{
		QueryService: queryService,
		Resources:    resources,
		Backend:      cfg.IndexBackend,
		Metrics:      m,
		Gatherer:     reg,
	})

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		slog.Debug("Generation configuration", "generator", cfg.Generator, "base_url", cfg.LLMBaseURL, "model", cfg.LLMModel)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			slog.Error("API server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}
}
