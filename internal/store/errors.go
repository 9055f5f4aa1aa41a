package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced record or identity does
	// not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidSignature is returned when a signature is malformed or
	// missing required fields. Caller error, never retried.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrTimeout is returned when a search exceeds its budget. Partial
	// results are never returned alongside it.
	ErrTimeout = errors.New("search timed out")
)

// DimensionMismatchError indicates an embedding whose length does not
// equal the configured dimensionality.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
