package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"groundedqa/internal/apperr"
	"groundedqa/internal/contextutil"
	"groundedqa/internal/corpus"
	"groundedqa/internal/llm"
	"groundedqa/internal/storage"
	"groundedqa/internal/vectorstore"
)

// ErrLocked is returned when another ingestion run holds the index lock.
var ErrLocked = errors.New("index is locked by another ingestion run")

// Builder orchestrates ingestion: load corpus, chunk, embed, build, persist.
type Builder struct {
	embedder llm.Embedder
	chunker  *Chunker
	opts     Options
	mirror   Mirror
}

// NewBuilder creates a new index builder. Chunking parameters are validated here
// so a bad configuration fails before the corpus is touched.
func NewBuilder(embedder llm.Embedder, opts Options) (*Builder, error) {
	if embedder == nil {
		return nil, apperr.Configf("embedder is required")
	}
	chunker, err := NewChunker(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = corpus.DefaultExtensions
	}

	return &Builder{
		embedder: embedder,
		chunker:  chunker,
		opts:     opts,
	}, nil
}

// SetMirror registers a store that receives every persisted index.
func (b *Builder) SetMirror(m Mirror) {
	b.mirror = m
}

// Build indexes every eligible file under corpusDir and atomically replaces the
// index at indexPath. Only one Build may run per indexPath at a time; a
// concurrent run fails with ErrLocked. On failure the previous index is left
// untouched.
func (b *Builder) Build(ctx context.Context, corpusDir, indexPath string) (*BuildReport, error) {
	logger := contextutil.LoggerFromContext(ctx)

	manager, err := corpus.NewManager(corpusDir, b.opts.Extensions)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	lock := flock.New(indexPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lock.Path())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.WarnContext(ctx, "failed to release index lock", "path", lock.Path(), "error", err)
		}
	}()

	logger.InfoContext(ctx, "starting ingestion", "corpus", manager.Root(), "index", indexPath)

	loaded, err := manager.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	report := &BuildReport{
		DocsFound:      loaded.Found,
		DocsLoaded:     len(loaded.Documents),
		DocsSkipped:    len(loaded.Failures),
		FilesIgnored:   loaded.Ignored,
		EmbeddingModel: b.embedder.Model(),
		Dimension:      b.embedder.Dimension(),
		ChunkerVersion: ChunkerVersion,
		IndexVersion:   IndexVersion(b.embedder.Model(), b.chunker.Size, b.chunker.Overlap),
		IndexPath:      indexPath,
	}
	for _, f := range loaded.Failures {
		logger.WarnContext(ctx, "skipping unreadable file", "source", f.Source, "error", f.Err)
		report.SkippedSources = append(report.SkippedSources, f.Source)
	}

	var chunks []storage.Chunk
	lengths := make([]int, 0)
	for _, doc := range loaded.Documents {
		docChunks, err := b.chunker.Chunk(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk %s: %w", doc.Source, err)
		}
		if len(docChunks) == 0 {
			logger.WarnContext(ctx, "document produced no chunks", "source", doc.Source)
			report.DocsWith0Chunks++
			report.EmptySources = append(report.EmptySources, doc.Source)
			continue
		}
		for _, c := range docChunks {
			lengths = append(lengths, c.Length)
		}
		chunks = append(chunks, docChunks...)
	}
	report.ChunkCount = len(chunks)
	report.ChunkLengthStats = computeLengthStats(lengths)

	// A corpus with files in it must never turn into an empty index unnoticed.
	if len(chunks) == 0 && loaded.Found+loaded.Ignored > 0 {
		return report, fmt.Errorf("%w: corpus %s produced no chunks (%d eligible files, %d blank, %d ignored by extension)",
			apperr.ErrLoad, manager.Root(), loaded.Found, report.DocsWith0Chunks, loaded.Ignored)
	}
	if len(chunks) == 0 {
		logger.WarnContext(ctx, "corpus is empty, building an empty index", "corpus", manager.Root())
	}

	index, err := vectorstore.Build(ctx, chunks, b.embedder, vectorstore.BuildOptions{
		BatchSize:      b.opts.BatchSize,
		Concurrency:    b.opts.Concurrency,
		ChunkSize:      b.chunker.Size,
		ChunkOverlap:   b.chunker.Overlap,
		ChunkerVersion: ChunkerVersion,
		IndexVersion:   report.IndexVersion,
	})
	if err != nil {
		return report, fmt.Errorf("failed to build index: %w", err)
	}

	if err := index.Persist(ctx, indexPath); err != nil {
		return report, fmt.Errorf("failed to persist index: %w", err)
	}

	if b.mirror != nil {
		if err := b.mirror.ReplaceCollection(ctx, index); err != nil {
			return report, fmt.Errorf("index persisted to %s but mirroring failed: %w", indexPath, err)
		}
		report.Mirrored = true
	}

	logger.InfoContext(ctx, "ingestion completed",
		"docs_found", report.DocsFound,
		"docs_loaded", report.DocsLoaded,
		"docs_skipped", report.DocsSkipped,
		"docs_with_0_chunks", report.DocsWith0Chunks,
		"files_ignored", report.FilesIgnored,
		"chunks", report.ChunkCount,
		"chunk_len_min", report.ChunkLengthStats.Min,
		"chunk_len_max", report.ChunkLengthStats.Max,
		"chunk_len_mean", report.ChunkLengthStats.Mean,
		"chunk_len_p95", report.ChunkLengthStats.P95,
		"index_version", report.IndexVersion,
		"mirrored", report.Mirrored,
	)
	return report, nil
}
