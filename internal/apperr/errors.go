// Package apperr defines the error kinds shared by ingestion and query paths.
// Every error produced by the core wraps exactly one of the sentinel kinds so
// callers can classify it with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad is returned when a corpus file cannot be read.
	ErrLoad = errors.New("load error")
	// ErrConfig is returned for invalid chunk, overlap, k or other settings.
	ErrConfig = errors.New("configuration error")
	// ErrEmbedding is returned when the embedding capability fails, times out
	// or returns vectors of the wrong shape.
	ErrEmbedding = errors.New("embedding error")
	// ErrIndexNotFound is returned when the persisted index does not exist.
	ErrIndexNotFound = errors.New("index not found")
	// ErrDimensionMismatch is returned when vector dimensions disagree between
	// the embedder, the index or a query.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrGeneration is returned when the generation capability fails or times out.
	ErrGeneration = errors.New("generation error")
	// ErrValidation is returned when request input is rejected.
	ErrValidation = errors.New("validation error")
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is reports ErrValidation as the kind of every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DimensionMismatchError carries the two disagreeing dimensions.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Is reports ErrDimensionMismatch as the kind of every DimensionMismatchError.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// IndexNotFoundError is returned by index loading when nothing exists at Path.
type IndexNotFoundError struct {
	Path string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index not found at %s: run ingestion (cmd/ingest) before starting the query service", e.Path)
}

// Is reports ErrIndexNotFound as the kind of every IndexNotFoundError.
func (e *IndexNotFoundError) Is(target error) bool {
	return target == ErrIndexNotFound
}

// Configf returns an ErrConfig with a formatted detail message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Wrap marks err with the given kind, keeping err in the chain.
// It returns nil when err is nil and err unchanged when it already has the kind.
func Wrap(kind error, err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, kind, err)
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Kind returns the sentinel kind carried by err, or nil when err carries none.
func Kind(err error) error {
	for _, kind := range []error{
		ErrValidation, ErrConfig, ErrIndexNotFound, ErrDimensionMismatch,
		ErrEmbedding, ErrGeneration, ErrLoad,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
