package signature

import "fmt"

// Kind identifies which biometric a signature was captured from.
type Kind string

const (
	KindFace  Kind = "face"
	KindThumb Kind = "thumb"
)

// Valid reports whether the kind is one of the supported biometric kinds.
func (k Kind) Valid() bool {
	return k == KindFace || k == KindThumb
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown signature kind %q", s)
	}
	return k, nil
}

// Descriptor is a single local keypoint feature: its position in the
// source image plus a fixed-width binary vector (32 bytes for ORB).
type Descriptor struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Vector []byte  `json:"vector"`
}

// Signature is the opaque numeric output of the feature-extraction
// collaborator. At least one of Hash or Embedding must be present;
// Descriptors are optional and only used for reranking.
type Signature struct {
	Hash        *uint64      `json:"-"`
	Embedding   []float32    `json:"embedding,omitempty"`
	Descriptors []Descriptor `json:"descriptors,omitempty"`
}

// HasHash reports whether the signature carries a perceptual hash.
func (s *Signature) HasHash() bool {
	return s.Hash != nil
}

// HasEmbedding reports whether the signature carries a dense embedding.
func (s *Signature) HasEmbedding() bool {
	return len(s.Embedding) > 0
}
