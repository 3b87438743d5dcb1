package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Meta table keys.
const (
	metaFormatVersion  = "format_version"
	metaMetric         = "metric"
	metaDimension      = "dimension"
	metaEmbeddingModel = "embedding_model"
	metaChunkSize      = "chunk_size"
	metaChunkOverlap   = "chunk_overlap"
	metaChunkerVersion = "chunker_version"
	metaIndexVersion   = "index_version"
	metaChunkCount     = "chunk_count"
	metaBuiltAt        = "built_at"
)

// IndexRepo reads and writes index metadata and chunk records in one SQLite file.
type IndexRepo struct {
	db *sql.DB
}

// NewIndexRepo creates a new IndexRepo.
func NewIndexRepo(db *sql.DB) *IndexRepo {
	return &IndexRepo{db: db}
}

// WriteMeta stores the index metadata, replacing existing keys.
func (r *IndexRepo) WriteMeta(ctx context.Context, meta Meta) error {
	values := map[string]string{
		metaFormatVersion:  strconv.Itoa(meta.FormatVersion),
		metaMetric:         meta.Metric,
		metaDimension:      strconv.Itoa(meta.Dimension),
		metaEmbeddingModel: meta.EmbeddingModel,
		metaChunkSize:      strconv.Itoa(meta.ChunkSize),
		metaChunkOverlap:   strconv.Itoa(meta.ChunkOverlap),
		metaChunkerVersion: meta.ChunkerVersion,
		metaIndexVersion:   meta.IndexVersion,
		metaChunkCount:     strconv.Itoa(meta.ChunkCount),
		metaBuiltAt:        meta.BuiltAt.UTC().Format(time.RFC3339),
	}

	for key, value := range values {
		_, err := r.db.ExecContext(ctx,
			"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			key, value,
		)
		if err != nil {
			return fmt.Errorf("failed to write meta %s: %w", key, err)
		}
	}
	return nil
}

// ReadMeta loads the index metadata. Missing or malformed keys are an error.
func (r *IndexRepo) ReadMeta(ctx context.Context) (Meta, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return Meta{}, fmt.Errorf("failed to query meta: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Meta{}, fmt.Errorf("failed to scan meta: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return Meta{}, fmt.Errorf("row iteration error: %w", err)
	}

	var meta Meta
	ints := []struct {
		key string
		dst *int
	}{
		{metaFormatVersion, &meta.FormatVersion},
		{metaDimension, &meta.Dimension},
		{metaChunkSize, &meta.ChunkSize},
		{metaChunkOverlap, &meta.ChunkOverlap},
		{metaChunkCount, &meta.ChunkCount},
	}
	for _, field := range ints {
		raw, ok := values[field.key]
		if !ok {
			return Meta{}, fmt.Errorf("meta key %s missing", field.key)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Meta{}, fmt.Errorf("meta key %s is not an integer: %w", field.key, err)
		}
		*field.dst = n
	}

	var ok bool
	if meta.Metric, ok = values[metaMetric]; !ok {
		return Meta{}, fmt.Errorf("meta key %s missing", metaMetric)
	}
	meta.EmbeddingModel = values[metaEmbeddingModel]
	meta.ChunkerVersion = values[metaChunkerVersion]
	meta.IndexVersion = values[metaIndexVersion]
	if builtAt, ok := values[metaBuiltAt]; ok {
		if t, err := time.Parse(time.RFC3339, builtAt); err == nil {
			meta.BuiltAt = t
		}
	}

	return meta, nil
}

// InsertRecords inserts records in order inside one transaction.
// The slice position becomes the record's stored position.
func (r *IndexRepo) InsertRecords(ctx context.Context, records []Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (position, id, source, char_offset, char_length, text, vector) VALUES (?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for i, rec := range records {
		c := rec.Chunk
		if _, err := stmt.ExecContext(ctx, i, c.ID, c.Source, c.Offset, c.Length, c.Text, EncodeVector(rec.Vector)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// ListRecords returns all records ordered by position.
// Returns an empty slice if the index holds no chunks (not an error).
func (r *IndexRepo) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, source, char_offset, char_length, text, vector FROM chunks ORDER BY position",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var blob []byte
		if err := rows.Scan(&rec.Chunk.ID, &rec.Chunk.Source, &rec.Chunk.Offset, &rec.Chunk.Length, &rec.Chunk.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", rec.Chunk.ID, err)
		}
		rec.Vector = vec
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// EncodeVector serializes a vector as little-endian float32 bits.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
