package match

// Policy bundles the tunable precision/recall knobs of a search. The
// defaults ship as data (internal/config policy.yaml); callers may
// override any field per request.
type Policy struct {
	// BucketRadius widens the candidate scan to buckets within
	// [bucket-radius, bucket+radius]. Larger radius trades scan cost
	// for recall.
	BucketRadius int `json:"bucket_radius" yaml:"bucket_radius"`

	// HashThreshold is the exclusive upper bound on Hamming distance
	// for a hash candidate to survive, in [0, 64].
	HashThreshold int `json:"hash_threshold" yaml:"hash_threshold"`

	// SimilarityThreshold is the exclusive lower bound on cosine
	// similarity for an embedding candidate to survive.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`

	// Limit caps the shortlist handed to the reranker (top-K).
	Limit int `json:"limit" yaml:"limit"`

	// AmbiguityGap is the minimum confidence margin the best candidate
	// must have over the runner-up before a match is asserted.
	AmbiguityGap float64 `json:"ambiguity_gap" yaml:"ambiguity_gap"`

	// RerankCutoff is the Hamming distance below which a descriptor
	// correspondence counts as good.
	RerankCutoff int `json:"rerank_cutoff" yaml:"rerank_cutoff"`

	// RerankMinMatches is the minimum number of good correspondences
	// for the reranker to confirm a candidate.
	RerankMinMatches int `json:"rerank_min_matches" yaml:"rerank_min_matches"`
}

// Normalize fills zero-valued fields from the fallback policy so a
// partial per-request override inherits the configured defaults.
func (p Policy) Normalize(defaults Policy) Policy {
	if p.BucketRadius <= 0 {
		p.BucketRadius = defaults.BucketRadius
	}
	if p.HashThreshold <= 0 {
		p.HashThreshold = defaults.HashThreshold
	}
	if p.SimilarityThreshold <= 0 {
		p.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if p.Limit <= 0 {
		p.Limit = defaults.Limit
	}
	if p.AmbiguityGap <= 0 {
		p.AmbiguityGap = defaults.AmbiguityGap
	}
	if p.RerankCutoff <= 0 {
		p.RerankCutoff = defaults.RerankCutoff
	}
	if p.RerankMinMatches <= 0 {
		p.RerankMinMatches = defaults.RerankMinMatches
	}
	return p
}
