package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"groundedqa/internal/apperr"
)

// ScannedFile is an eligible corpus file found during scanning.
type ScannedFile struct {
	Source  string // Relative path from corpus root (e.g., "billing/refunds.txt")
	AbsPath string // Absolute file path
}

// ScanResult lists eligible files and counts regular files that were not eligible.
type ScanResult struct {
	Files   []ScannedFile
	Ignored int
}

// LoadFailure records a corpus file that could not be read. Err carries apperr.ErrLoad.
type LoadFailure struct {
	Source string
	Err    error
}

// LoadResult is the outcome of loading a whole corpus.
type LoadResult struct {
	Documents []Document
	Failures  []LoadFailure
	Found     int // Eligible files found by the scan
	Ignored   int // Regular files skipped for their extension
}

// ScanAll walks the corpus root recursively and returns eligible files in lexical order.
// Hidden files and directories (leading dot) are skipped.
func (m *Manager) ScanAll(ctx context.Context) (*ScanResult, error) {
	result := &ScanResult{}

	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}

		// Check for context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path != m.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		if !m.eligible(d.Name()) {
			result.Ignored++
			return nil
		}

		relPath, err := filepath.Rel(m.root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}

		result.Files = append(result.Files, ScannedFile{
			Source:  filepath.ToSlash(relPath),
			AbsPath: path,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.ErrLoad, err, "failed to scan corpus")
	}

	return result, nil
}

// Load reads a single scanned file. Unreadable or non-UTF-8 content is an apperr.ErrLoad.
func (m *Manager) Load(file ScannedFile) (Document, error) {
	content, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return Document{}, apperr.Wrap(apperr.ErrLoad, err, fmt.Sprintf("failed to read %s", file.Source))
	}
	if !utf8.Valid(content) {
		return Document{}, fmt.Errorf("%w: %s is not valid UTF-8 text", apperr.ErrLoad, file.Source)
	}
	return Document{Source: file.Source, Text: string(content)}, nil
}

// LoadAll scans the corpus and loads every eligible file. Files that fail to
// load are skipped and reported in Failures. If every eligible file failed,
// LoadAll returns an apperr.ErrLoad error instead of an empty corpus.
func (m *Manager) LoadAll(ctx context.Context) (*LoadResult, error) {
	scan, err := m.ScanAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{
		Found:   len(scan.Files),
		Ignored: scan.Ignored,
	}

	for _, file := range scan.Files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		doc, err := m.Load(file)
		if err != nil {
			result.Failures = append(result.Failures, LoadFailure{Source: file.Source, Err: err})
			continue
		}
		result.Documents = append(result.Documents, doc)
	}

	if result.Found > 0 && len(result.Documents) == 0 {
		return result, fmt.Errorf("%w: all %d eligible corpus files failed to load (first: %v)",
			apperr.ErrLoad, result.Found, result.Failures[0].Err)
	}

	return result, nil
}
