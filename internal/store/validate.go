package store

import "fmt"

// ValidateRecord checks the shape invariants shared by all backends:
// a valid kind, at least one of hash/embedding present, and the
// configured embedding dimensionality. Violations are rejected at
// write time, not discovered at query time.
func ValidateRecord(r *SignatureRecord, embeddingDim int) error {
	if r.IdentityID == "" {
		return fmt.Errorf("%w: identity id is required", ErrInvalidSignature)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSignature, r.Kind)
	}
	if r.Hash == nil && len(r.Embedding) == 0 {
		return fmt.Errorf("%w: at least one of hash or embedding is required", ErrInvalidSignature)
	}
	if len(r.Embedding) > 0 && len(r.Embedding) != embeddingDim {
		return &DimensionMismatchError{Expected: embeddingDim, Actual: len(r.Embedding)}
	}
	for i := range r.Descriptors {
		if len(r.Descriptors[i].Vector) == 0 {
			return fmt.Errorf("%w: descriptor %d has an empty vector", ErrInvalidSignature, i)
		}
	}
	return nil
}
