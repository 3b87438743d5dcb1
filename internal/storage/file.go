package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"groundedqa/internal/apperr"
)

// WriteIndexFile writes meta and records to a temporary file next to path and
// atomically renames it over path. On any failure the previous file at path,
// if one exists, is left untouched.
func WriteIndexFile(ctx context.Context, path string, meta Meta, records []Record) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
			_ = os.Remove(tmpPath + "-journal")
		}
	}()

	db, err := New(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to open temp index file: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create index schema: %w", err)
	}

	repo := NewIndexRepo(db)
	meta.FormatVersion = FormatVersion
	meta.ChunkCount = len(records)
	if err := repo.WriteMeta(ctx, meta); err != nil {
		_ = db.Close()
		return err
	}
	if err := repo.InsertRecords(ctx, records); err != nil {
		_ = db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close temp index file: %w", err)
	}

	if err := syncPath(tmpPath); err != nil {
		return fmt.Errorf("failed to sync temp index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	// The rename is durable only once the directory entry is synced.
	if err := syncPath(dir); err != nil {
		return fmt.Errorf("failed to sync index directory: %w", err)
	}
	return nil
}

// ReadIndexFile loads meta and records from the index file at path.
// A missing file yields an *apperr.IndexNotFoundError.
func ReadIndexFile(ctx context.Context, path string) (Meta, []Record, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Meta{}, nil, &apperr.IndexNotFoundError{Path: path}
	}
	if err != nil {
		return Meta{}, nil, fmt.Errorf("failed to stat index file: %w", err)
	}
	if info.IsDir() {
		return Meta{}, nil, fmt.Errorf("index path %s is a directory", path)
	}

	db, err := OpenReadOnly(path)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	repo := NewIndexRepo(db)
	meta, err := repo.ReadMeta(ctx)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("invalid index file %s: %w", path, err)
	}
	if meta.FormatVersion != FormatVersion {
		return Meta{}, nil, fmt.Errorf("unsupported index format version %d (want %d): rebuild the index", meta.FormatVersion, FormatVersion)
	}

	records, err := repo.ListRecords(ctx)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("invalid index file %s: %w", path, err)
	}
	if len(records) != meta.ChunkCount {
		return Meta{}, nil, fmt.Errorf("invalid index file %s: meta declares %d chunks, found %d", path, meta.ChunkCount, len(records))
	}

	return meta, records, nil
}

func syncPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return f.Sync()
}
