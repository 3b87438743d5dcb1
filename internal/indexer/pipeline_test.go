package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"groundedqa/internal/apperr"
	"groundedqa/internal/llm"
	llm_mocks "groundedqa/internal/llm/mocks"
	"groundedqa/internal/vectorstore"
)

func init() {
	// Discard logs during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func newTestBuilder(t *testing.T, embedder llm.Embedder) *Builder {
	t.Helper()
	builder, err := NewBuilder(embedder, Options{ChunkSize: 120, ChunkOverlap: 20, BatchSize: 2, Concurrency: 2})
	require.NoError(t, err)
	return builder
}

func hashEmbedder(t *testing.T) *llm.HashEmbedder {
	t.Helper()
	embedder, err := llm.NewHashEmbedder(64)
	require.NoError(t, err)
	return embedder
}

type recordingMirror struct {
	index *vectorstore.FlatIndex
	err   error
}

func (m *recordingMirror) ReplaceCollection(_ context.Context, index *vectorstore.FlatIndex) error {
	m.index = index
	return m.err
}

func TestNewBuilder_InvalidOptions(t *testing.T) {
	_, err := NewBuilder(hashEmbedder(t), Options{ChunkSize: 100, ChunkOverlap: 100})
	assert.ErrorIs(t, err, apperr.ErrConfig)

	_, err = NewBuilder(nil, Options{ChunkSize: 100, ChunkOverlap: 10})
	assert.ErrorIs(t, err, apperr.ErrConfig)
}

func TestBuilder_Build(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"refunds.txt":         "Refunds are issued within 5 to 7 business days. Contact support if your refund is late.",
		"shipping/intl.md":    "We ship to over 40 countries. Customs fees are paid by the recipient, and shipping costs are shown at checkout before payment.",
		"blank.txt":           "   \n",
		"logo.png":            "not text",
		".hidden/secrets.txt": "should never be indexed",
	})
	indexPath := filepath.Join(t.TempDir(), "index", "faq.index")
	embedder := hashEmbedder(t)
	ctx := context.Background()

	report, err := newTestBuilder(t, embedder).Build(ctx, root, indexPath)
	require.NoError(t, err)

	assert.Equal(t, 3, report.DocsFound)
	assert.Equal(t, 3, report.DocsLoaded)
	assert.Equal(t, 0, report.DocsSkipped)
	assert.Equal(t, 1, report.FilesIgnored)
	assert.Equal(t, 1, report.DocsWith0Chunks)
	assert.Equal(t, []string{"blank.txt"}, report.EmptySources)
	assert.Equal(t, 3, report.ChunkCount, "short refunds doc is one chunk, intl.md splits in two")
	assert.LessOrEqual(t, report.ChunkLengthStats.Max, 120)
	assert.Equal(t, ChunkerVersion, report.ChunkerVersion)
	assert.Equal(t, IndexVersion(llm.HashEmbedderModel, 120, 20), report.IndexVersion)
	assert.False(t, report.Mirrored)

	index, err := vectorstore.Load(ctx, indexPath, embedder)
	require.NoError(t, err)
	assert.Equal(t, report.ChunkCount, index.Len())
	meta := index.Meta()
	assert.Equal(t, 120, meta.ChunkSize)
	assert.Equal(t, 20, meta.ChunkOverlap)
	assert.Equal(t, report.IndexVersion, meta.IndexVersion)

	for _, rec := range index.Records() {
		assert.NotEqual(t, ".hidden/secrets.txt", rec.Chunk.Source)
	}

	// The lock is released after a run.
	_, err = os.Stat(indexPath + ".lock")
	require.NoError(t, err)
	lock := flock.New(indexPath + ".lock")
	locked, err := lock.TryLock()
	require.NoError(t, err)
	assert.True(t, locked)
	require.NoError(t, lock.Unlock())
}

func TestBuilder_Build_SkipsUnreadableFiles(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"good.txt": "How do I reset my password? Use the Forgot password link.",
		"bad.txt":  string([]byte{0xff, 0xfe}),
	})
	indexPath := filepath.Join(t.TempDir(), "faq.index")

	report, err := newTestBuilder(t, hashEmbedder(t)).Build(context.Background(), root, indexPath)
	require.NoError(t, err)
	assert.Equal(t, 2, report.DocsFound)
	assert.Equal(t, 1, report.DocsSkipped)
	assert.Equal(t, []string{"bad.txt"}, report.SkippedSources)
	assert.Equal(t, 1, report.ChunkCount)
}

func TestBuilder_Build_NonEmptyCorpusWithoutChunks(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{name: "only blank documents", files: map[string]string{"a.txt": "", "b.md": "\n\n"}},
		{name: "only ineligible files", files: map[string]string{"manual.pdf": "%PDF"}},
		{name: "every file unreadable", files: map[string]string{"a.txt": string([]byte{0xc3, 0x28})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeCorpus(t, tt.files)
			indexPath := filepath.Join(t.TempDir(), "faq.index")

			_, err := newTestBuilder(t, hashEmbedder(t)).Build(context.Background(), root, indexPath)
			assert.ErrorIs(t, err, apperr.ErrLoad)

			_, statErr := os.Stat(indexPath)
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "no index should be written")
		})
	}
}

func TestBuilder_Build_EmptyCorpus(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "faq.index")
	embedder := hashEmbedder(t)

	report, err := newTestBuilder(t, embedder).Build(context.Background(), t.TempDir(), indexPath)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ChunkCount)

	index, err := vectorstore.Load(context.Background(), indexPath, embedder)
	require.NoError(t, err)
	assert.Equal(t, 0, index.Len())
}

func TestBuilder_Build_MissingCorpus(t *testing.T) {
	_, err := newTestBuilder(t, hashEmbedder(t)).Build(context.Background(), filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "faq.index"))
	assert.ErrorIs(t, err, apperr.ErrLoad)
}

func TestBuilder_Build_Locked(t *testing.T) {
	root := writeCorpus(t, map[string]string{"a.txt": "Refunds take five days."})
	indexPath := filepath.Join(t.TempDir(), "faq.index")

	held := flock.New(indexPath + ".lock")
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() {
		_ = held.Unlock()
	}()

	_, err = newTestBuilder(t, hashEmbedder(t)).Build(context.Background(), root, indexPath)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestBuilder_Build_FailureKeepsPreviousIndex(t *testing.T) {
	root := writeCorpus(t, map[string]string{"a.txt": "Refunds take five days.", "b.txt": "We ship worldwide."})
	indexPath := filepath.Join(t.TempDir(), "faq.index")
	ctx := context.Background()

	// Same dimension and model as the failing mock so Load accepts the old index.
	embedder := hashEmbedder(t)
	_, err := newTestBuilder(t, embedder).Build(ctx, root, indexPath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "c.txt"), []byte("New answer."), 0o644))

	ctrl := gomock.NewController(t)
	failing := llm_mocks.NewMockEmbedder(ctrl)
	failing.EXPECT().Dimension().Return(embedder.Dimension()).AnyTimes()
	failing.EXPECT().Model().Return(embedder.Model()).AnyTimes()
	failing.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused")).AnyTimes()

	_, err = newTestBuilder(t, failing).Build(ctx, root, indexPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrEmbedding)

	index, err := vectorstore.Load(ctx, indexPath, embedder)
	require.NoError(t, err)
	assert.Equal(t, 2, index.Len(), "previous index untouched")
}

func TestBuilder_Build_Mirror(t *testing.T) {
	root := writeCorpus(t, map[string]string{"a.txt": "Refunds take five days."})
	ctx := context.Background()

	t.Run("mirrors persisted index", func(t *testing.T) {
		mirror := &recordingMirror{}
		builder := newTestBuilder(t, hashEmbedder(t))
		builder.SetMirror(mirror)

		report, err := builder.Build(ctx, root, filepath.Join(t.TempDir(), "faq.index"))
		require.NoError(t, err)
		assert.True(t, report.Mirrored)
		require.NotNil(t, mirror.index)
		assert.Equal(t, 1, mirror.index.Len())
	})

	t.Run("mirror failure is reported after persisting", func(t *testing.T) {
		mirror := &recordingMirror{err: errors.New("qdrant unavailable")}
		builder := newTestBuilder(t, hashEmbedder(t))
		builder.SetMirror(mirror)
		indexPath := filepath.Join(t.TempDir(), "faq.index")

		report, err := builder.Build(ctx, root, indexPath)
		require.Error(t, err)
		assert.False(t, report.Mirrored)

		_, err = os.Stat(indexPath)
		assert.NoError(t, err, "index is persisted before mirroring")
	})
}
