// Command ingest builds the persisted FAQ index from a corpus directory.
//
// Usage:
//
//	ingest [-corpus DIR] [-index PATH]
//
// Flags default to CORPUS_DIR and INDEX_PATH. When QDRANT_URL is set the
// built index is also mirrored into QDRANT_COLLECTION. The build report is
// printed to stdout as JSON; the exit status is non-zero on failure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"groundedqa/internal/config"
	"groundedqa/internal/indexer"
	"groundedqa/internal/service"
	"groundedqa/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		if errors.Is(err, indexer.ErrLocked) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	corpusDir := flag.String("corpus", cfg.CorpusDir, "Corpus directory to index")
	indexPath := flag.String("index", cfg.IndexPath, "Index file to write")
	flag.Parse()

	slog.SetDefault(cfg.Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := service.NewEmbedder(cfg)
	if err != nil {
		return err
	}

	builder, err := indexer.NewBuilder(embedder, indexer.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Extensions:   cfg.CorpusExtensions,
		BatchSize:    cfg.EmbedBatchSize,
		Concurrency:  cfg.EmbedConcurrency,
	})
	if err != nil {
		return err
	}

	if cfg.QdrantURL != "" {
		store, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection)
		if err != nil {
			return err
		}
		defer func() {
			_ = store.Close()
		}()
		builder.SetMirror(store)
	}

	report, err := builder.Build(ctx, *corpusDir, *indexPath)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			slog.Warn("failed to print build report", "error", encErr)
		}
	}
	return err
}
