package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any I/O: empty batches,
	// dimensionality mismatches, k < 1.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing artifact, document root, prompt or generation.
	ErrNotFound = errors.New("not found")
	// ErrCorruption marks persisted data that cannot be trusted. It is a data
	// problem, not a transient one.
	ErrCorruption = errors.New("corrupted index")
	ErrIO         = errors.New("i/o error")
	// ErrNoDocuments is returned when ingestion finds nothing to index.
	ErrNoDocuments = errors.New("no documents found")
	ErrProvider    = errors.New("provider error")
)

// ProviderError wraps a failure reported by an embedding or generation backend.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// ParseError records generation output that did not have the expected
// structure. It travels as a result field so callers keep the raw text.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Validationf returns an ErrValidation with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
