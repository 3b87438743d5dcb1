package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"groundedqa/internal/config"
	"groundedqa/internal/contextutil"
	"groundedqa/internal/llm"
	"groundedqa/internal/metrics"
	"groundedqa/internal/rag"
	"groundedqa/internal/vectorstore"
)

// Shared holds the process-wide handles every question is answered with.
// All of them are read-only once loaded.
type Shared struct {
	Embedder  llm.Embedder
	Searcher  vectorstore.Searcher
	Retriever *rag.Retriever
	Generator rag.Generator

	closer func() error
}

// NewShared bundles loaded handles. closer may be nil.
func NewShared(embedder llm.Embedder, searcher vectorstore.Searcher, generator rag.Generator, closer func() error) *Shared {
	return &Shared{
		Embedder:  embedder,
		Searcher:  searcher,
		Retriever: rag.NewRetriever(embedder, searcher),
		Generator: generator,
		closer:    closer,
	}
}

// Loader constructs the shared handles.
type Loader func(ctx context.Context) (*Shared, error)

// ErrResourcesClosed is returned by Get after Close when nothing was loaded.
var ErrResourcesClosed = errors.New("query resources closed")

// Resources loads the shared handles at most once. Concurrent first callers
// wait for the single load and then all observe the same result, including a
// failed one. A waiting caller whose context ends stops waiting; the load
// itself carries on for the others.
type Resources struct {
	loader Loader

	start  sync.Once
	done   chan struct{}
	shared *Shared
	err    error

	closeMu sync.Mutex
}

// NewResources creates a lazy holder around loader.
func NewResources(loader Loader) *Resources {
	return &Resources{
		loader: loader,
		done:   make(chan struct{}),
	}
}

// Get returns the shared handles, loading them on first use. The load is not
// cancelled when the triggering request is.
func (r *Resources) Get(ctx context.Context) (*Shared, error) {
	r.start.Do(func() {
		loadCtx := context.WithoutCancel(ctx)
		go func() {
			defer close(r.done)
			r.shared, r.err = r.loader(loadCtx)
			if r.err == nil && r.shared == nil {
				r.err = errors.New("resource loader returned no resources")
			}
		}()
	})

	select {
	case <-r.done:
		return r.shared, r.err
	default:
	}
	select {
	case <-r.done:
		return r.shared, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for query resources: %w", ctx.Err())
	}
}

// Close releases the backend held by loaded resources, if any. It waits for
// an in-flight load; afterwards an unstarted load never runs.
func (r *Resources) Close() error {
	r.start.Do(func() {
		r.err = ErrResourcesClosed
		close(r.done)
	})
	<-r.done

	r.closeMu.Lock()
	defer r.closeMu.Unlock()

	if r.shared == nil || r.shared.closer == nil {
		return nil
	}
	closer := r.shared.closer
	r.shared.closer = nil
	return closer()
}

// NewEmbedder builds the embedder selected by cfg. Ingestion and the query
// service must use the same settings.
func NewEmbedder(cfg *config.Config) (llm.Embedder, error) {
	switch cfg.Embedder {
	case config.EmbedderHash:
		return llm.NewHashEmbedder(cfg.EmbeddingDimension)
	case config.EmbedderOpenAI:
		return llm.NewEmbeddingsClient(
			cfg.EmbeddingBaseURL,
			cfg.EmbeddingAPIKey,
			cfg.EmbeddingModel,
			cfg.EmbeddingDimension,
			llm.CallPolicy{Timeout: cfg.EmbedTimeout, Retry: true},
		), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}
}

// NewGenerator builds the generator selected by cfg.
func NewGenerator(cfg *config.Config) (rag.Generator, error) {
	switch cfg.Generator {
	case config.GeneratorLocal:
		return rag.NewLocalGenerator(), nil
	case config.GeneratorOpenAI:
		client := llm.NewClient(
			cfg.LLMBaseURL,
			cfg.LLMAPIKey,
			cfg.LLMModel,
			llm.CallPolicy{Timeout: cfg.GenerationTimeout, Retry: true},
		)
		return rag.NewChatGenerator(client), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", cfg.Generator)
	}
}

// ConfigLoader returns a Loader that opens the index backend selected by cfg
// and records the loaded chunk count in m.
func ConfigLoader(cfg *config.Config, m *metrics.Metrics) Loader {
	return func(ctx context.Context) (*Shared, error) {
		logger := contextutil.LoggerFromContext(ctx)
		start := time.Now()

		embedder, err := NewEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		generator, err := NewGenerator(cfg)
		if err != nil {
			return nil, err
		}

		var (
			searcher vectorstore.Searcher
			closer   func() error
		)
		switch cfg.IndexBackend {
		case config.BackendQdrant:
			store, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection)
			if err != nil {
				return nil, err
			}
			if err := store.Open(ctx, embedder.Dimension()); err != nil {
				_ = store.Close()
				return nil, err
			}
			searcher, closer = store, store.Close
		default:
			index, err := vectorstore.Load(ctx, cfg.IndexPath, embedder)
			if err != nil {
				return nil, err
			}
			searcher = index
		}

		if m != nil {
			m.IndexChunks.Set(float64(searcher.Len()))
			m.StageDuration.WithLabelValues(metrics.StageLoad).Observe(time.Since(start).Seconds())
		}
		logger.InfoContext(ctx, "query resources loaded",
			"backend", cfg.IndexBackend,
			"embedder", embedder.Model(),
			"generator", cfg.Generator,
			"chunks", searcher.Len(),
			"dimension", searcher.Dimension(),
		)
		return NewShared(embedder, searcher, generator, closer), nil
	}
}
