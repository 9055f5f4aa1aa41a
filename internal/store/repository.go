package store

import (
	"context"

	"github.com/jsykora/bioindex/internal/signature"
)

// SignatureReader provides read-only access to enrolled signatures.
type SignatureReader interface {
	// Get retrieves a record by id. Returns ErrNotFound if absent.
	Get(ctx context.Context, id int64) (*SignatureRecord, error)
	// GetByIdentity retrieves the record for an (identity, kind) pair.
	// Returns ErrNotFound if absent.
	GetByIdentity(ctx context.Context, identityID string, kind signature.Kind) (*SignatureRecord, error)
	// ListByKind returns all records of a kind, ordered by insertion.
	// Used by the embedding matcher's scan path and by index rebuilds.
	ListByKind(ctx context.Context, kind signature.Kind) ([]SignatureRecord, error)
	// CandidatesInRange returns records of the kind whose bucket lies in
	// [bucket-radius, bucket+radius] clamped to [0, 255], ordered by
	// insertion. Records without a hash are never returned.
	CandidatesInRange(ctx context.Context, kind signature.Kind, bucket, radius int) ([]SignatureRecord, error)
	// Count returns the total number of records stored.
	Count(ctx context.Context) (int, error)
}

// VectorSearcher is an optional interface a store may implement when its
// backend can rank by cosine distance itself (pgvector). The embedding
// matcher prefers it over a flat scan when no in-memory index is
// attached.
type VectorSearcher interface {
	// FindSimilar returns up to limit records of the kind ordered by
	// ascending cosine distance to the query, with the distances.
	FindSimilar(ctx context.Context, query []float32, kind signature.Kind, limit int) ([]SignatureRecord, []float64, error)
}

// SignatureWriter provides write access to enrolled signatures.
type SignatureWriter interface {
	SignatureReader

	// Put validates the record and stores it, replacing any existing
	// record for the same (identity, kind). The bucket is recomputed
	// from the hash as part of the same write; it is never taken from
	// the caller. Returns the assigned record id.
	Put(ctx context.Context, record *SignatureRecord) (int64, error)

	// DeleteIdentity removes all records for an identity, across kinds.
	// Returns the number of records removed.
	DeleteIdentity(ctx context.Context, identityID string) (int, error)
}
