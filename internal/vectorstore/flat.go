package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"groundedqa/internal/apperr"
	"groundedqa/internal/contextutil"
	"groundedqa/internal/llm"
	"groundedqa/internal/storage"
)

const (
	defaultBatchSize   = 32
	defaultConcurrency = 4
)

// BuildOptions tunes embedding during Build and records chunking parameters
// in the index metadata.
type BuildOptions struct {
	BatchSize   int // Texts per Embed call (default 32)
	Concurrency int // Embed calls in flight (default 4)

	ChunkSize      int
	ChunkOverlap   int
	ChunkerVersion string
	IndexVersion   string
}

// FlatIndex is an exact cosine-similarity index held in memory.
// It is immutable once built or loaded.
type FlatIndex struct {
	meta    storage.Meta
	records []storage.Record
	norms   []float64
}

// Build embeds every chunk exactly once and returns an index preserving chunk order.
// An empty chunk list yields an empty but valid index.
func Build(ctx context.Context, chunks []storage.Chunk, embedder llm.Embedder, opts BuildOptions) (*FlatIndex, error) {
	logger := contextutil.LoggerFromContext(ctx)

	dim := embedder.Dimension()
	if dim <= 0 {
		return nil, apperr.Configf("embedder dimension must be positive, got %d", dim)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}

			batch, err := embedder.Embed(gctx, texts)
			if err != nil {
				return apperr.Wrap(apperr.ErrEmbedding, err, fmt.Sprintf("failed to embed chunks %d-%d", start, end-1))
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("%w: expected %d embeddings for chunks %d-%d, got %d",
					apperr.ErrEmbedding, len(texts), start, end-1, len(batch))
			}
			for i, vec := range batch {
				if len(vec) != dim {
					return apperr.Wrap(apperr.ErrEmbedding,
						&apperr.DimensionMismatchError{Expected: dim, Got: len(vec)},
						fmt.Sprintf("chunk %d", start+i))
				}
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]storage.Record, len(chunks))
	for i, c := range chunks {
		records[i] = storage.Record{Chunk: c, Vector: vectors[i]}
	}

	meta := storage.Meta{
		FormatVersion:  storage.FormatVersion,
		Metric:         MetricCosine,
		Dimension:      dim,
		EmbeddingModel: embedder.Model(),
		ChunkSize:      opts.ChunkSize,
		ChunkOverlap:   opts.ChunkOverlap,
		ChunkerVersion: opts.ChunkerVersion,
		IndexVersion:   opts.IndexVersion,
		ChunkCount:     len(records),
		BuiltAt:        time.Now().UTC().Truncate(time.Second),
	}

	logger.InfoContext(ctx, "index built", "chunks", len(records), "dimension", dim, "model", meta.EmbeddingModel)
	return newFlatIndex(meta, records), nil
}

// Load reads a persisted index and validates it against embedder.
// A missing path yields an *apperr.IndexNotFoundError; a dimension that
// differs from the embedder's yields an *apperr.DimensionMismatchError.
func Load(ctx context.Context, path string, embedder llm.Embedder) (*FlatIndex, error) {
	logger := contextutil.LoggerFromContext(ctx)

	meta, records, err := storage.ReadIndexFile(ctx, path)
	if err != nil {
		return nil, err
	}

	if meta.Metric != MetricCosine {
		return nil, apperr.Configf("index %s uses metric %q, only %q is supported", path, meta.Metric, MetricCosine)
	}
	if meta.Dimension != embedder.Dimension() {
		return nil, apperr.WrapError(
			&apperr.DimensionMismatchError{Expected: meta.Dimension, Got: embedder.Dimension()},
			fmt.Sprintf("index %s was built with a different embedder; rebuild it", path),
		)
	}
	for i, rec := range records {
		if len(rec.Vector) != meta.Dimension {
			return nil, fmt.Errorf("invalid index file %s: chunk %d has %d dimensions, meta declares %d",
				path, i, len(rec.Vector), meta.Dimension)
		}
	}
	if meta.EmbeddingModel != embedder.Model() {
		logger.WarnContext(ctx, "index was built with a different embedding model",
			"index_model", meta.EmbeddingModel,
			"embedder_model", embedder.Model(),
		)
	}

	logger.InfoContext(ctx, "index loaded", "path", path, "chunks", len(records), "dimension", meta.Dimension, "index_version", meta.IndexVersion)
	return newFlatIndex(meta, records), nil
}

func newFlatIndex(meta storage.Meta, records []storage.Record) *FlatIndex {
	norms := make([]float64, len(records))
	for i, rec := range records {
		norms[i] = norm(rec.Vector)
	}
	return &FlatIndex{meta: meta, records: records, norms: norms}
}

// Persist atomically writes the index to path, replacing any previous index.
func (ix *FlatIndex) Persist(ctx context.Context, path string) error {
	if err := storage.WriteIndexFile(ctx, path, ix.meta, ix.records); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "index persisted", "path", path, "chunks", len(ix.records))
	return nil
}

// Search returns the k chunks most similar to query.
func (ix *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, apperr.Configf("k must be a positive integer, got %d", k)
	}
	if len(query) != ix.meta.Dimension {
		return nil, &apperr.DimensionMismatchError{Expected: ix.meta.Dimension, Got: len(query)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qNorm := norm(query)
	scores := make([]float32, len(ix.records))
	order := make([]int, len(ix.records))
	for i, rec := range ix.records {
		scores[i] = cosine(query, qNorm, rec.Vector, ix.norms[i])
		order[i] = i
	}

	// Stable sort keeps insertion order among equal scores.
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	n := min(k, len(order))
	results := make([]Result, n)
	for rank, pos := range order[:n] {
		results[rank] = Result{
			Chunk:    ix.records[pos].Chunk,
			Score:    scores[pos],
			Rank:     rank + 1,
			Position: pos,
		}
	}
	return results, nil
}

// Dimension returns the index vector length.
func (ix *FlatIndex) Dimension() int {
	return ix.meta.Dimension
}

// Len returns the number of indexed chunks.
func (ix *FlatIndex) Len() int {
	return len(ix.records)
}

// Meta returns the index metadata.
func (ix *FlatIndex) Meta() storage.Meta {
	return ix.meta
}

// Records returns the indexed records in insertion order. Callers must not modify them.
func (ix *FlatIndex) Records() []storage.Record {
	return ix.records
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero length.
func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float32 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (aNorm * bNorm))
}
