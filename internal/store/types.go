package store

import (
	"encoding/json"
	"time"

	"github.com/jsykora/bioindex/internal/signature"
)

// SignatureRecord is one enrolled biometric of a given kind for a given
// identity. Metadata is an opaque payload returned to the caller on a
// match; the index never interprets it.
type SignatureRecord struct {
	ID         int64
	IdentityID string
	Kind       signature.Kind

	// Hash is the 64-bit perceptual hash, optional (a record may carry
	// only an embedding). Bucket is always derived from Hash and must
	// never be set independently.
	Hash   *uint64
	Bucket int

	Embedding   []float32
	Descriptors []signature.Descriptor

	Metadata  json.RawMessage
	CreatedAt time.Time
}

// RecomputeBucket derives the bucket from the record's hash. Records
// without a hash get bucket -1 (never scanned by the bucket index).
func (r *SignatureRecord) RecomputeBucket() {
	if r.Hash == nil {
		r.Bucket = -1
		return
	}
	r.Bucket = signature.DeriveBucket(*r.Hash)
}

// HasHash reports whether the record carries a perceptual hash.
func (r *SignatureRecord) HasHash() bool {
	return r.Hash != nil
}

// Signature returns the record's signature fields as a signature value.
func (r *SignatureRecord) Signature() signature.Signature {
	return signature.Signature{
		Hash:        r.Hash,
		Embedding:   r.Embedding,
		Descriptors: r.Descriptors,
	}
}
