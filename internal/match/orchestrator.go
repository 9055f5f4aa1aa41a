package match

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

// Outcome classifies a search request's result.
type Outcome string

const (
	// OutcomeNoCandidates means no enrolled record passed the policy
	// thresholds. This is a normal result, not a failure.
	OutcomeNoCandidates Outcome = "no_candidates"

	// OutcomeMatch means a single best record cleared every check.
	OutcomeMatch Outcome = "match"

	// OutcomeAmbiguous means the top two candidates scored within the
	// ambiguity gap; no match is asserted to avoid a false positive.
	OutcomeAmbiguous Outcome = "ambiguous"
)

// Result is the orchestrator's answer to a search request.
type Result struct {
	Outcome    Outcome
	RecordID   int64
	IdentityID string

	// Confidence is the combined score in [0, 1]. For reranked results
	// it blends the matcher score with the descriptor match ratio.
	Confidence float64

	// HashDistance is the winning candidate's Hamming distance, -1 for
	// embedding searches.
	HashDistance int

	// Similarity is the winning candidate's cosine similarity, 0 for
	// hash searches.
	Similarity float64

	// MatchCount is the number of good descriptor correspondences when
	// the reranker ran, 0 otherwise.
	MatchCount int

	Metadata json.RawMessage

	// CandidatesChecked is the shortlist size before any reranking.
	CandidatesChecked int
}

// Orchestrator is the public entry point of the index: it dispatches a
// request to the right matcher, optionally confirms the shortlist with
// the descriptor reranker, and refuses to assert near-tied matches. It
// holds no per-request state.
type Orchestrator struct {
	hashMatcher      *HashMatcher
	embeddingMatcher *EmbeddingMatcher
}

// NewOrchestrator creates an orchestrator over the given store with the
// configured embedding dimensionality.
func NewOrchestrator(s store.SignatureReader, embeddingDim int) *Orchestrator {
	return &Orchestrator{
		hashMatcher:      NewHashMatcher(s),
		embeddingMatcher: NewEmbeddingMatcher(s, embeddingDim),
	}
}

// EmbeddingMatcher exposes the embedding matcher so callers can attach
// an HNSW index.
func (o *Orchestrator) EmbeddingMatcher() *EmbeddingMatcher {
	return o.embeddingMatcher
}

// Request resolves one search. Exactly one of hash or embedding must be
// present on the signature; descriptors are optional and trigger the
// rerank stage when supplied.
func (o *Orchestrator) Request(ctx context.Context, sig signature.Signature, kind signature.Kind, policy Policy) (*Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", store.ErrInvalidSignature, kind)
	}
	if sig.HasHash() == sig.HasEmbedding() {
		return nil, fmt.Errorf("%w: exactly one of hash or embedding must be set", store.ErrInvalidSignature)
	}

	candidates, err := o.shortlist(ctx, sig, kind, policy)
	if err != nil {
		return nil, err
	}
	checked := len(candidates)
	if checked == 0 {
		return &Result{Outcome: OutcomeNoCandidates}, nil
	}

	// The shortlist is single-kind with one record per identity, so the
	// top two entries always belong to distinct identities. A near-tie
	// between them is reported as ambiguous instead of picking a winner
	// arbitrarily.
	if checked >= 2 && candidates[0].Score-candidates[1].Score < policy.AmbiguityGap {
		return &Result{Outcome: OutcomeAmbiguous, CandidatesChecked: checked}, nil
	}

	best := &candidates[0]
	confidence := best.Score

	if len(sig.Descriptors) > 0 {
		reranker := NewReranker(policy.RerankCutoff, policy.RerankMinMatches)
		candidates, err = reranker.Rerank(ctx, sig.Descriptors, candidates)
		if err != nil {
			return nil, err
		}
		best = &candidates[0]
		if !reranker.Confirmed(best) {
			// The coarse stage proposed candidates but descriptor
			// verification rejected all of them.
			return &Result{Outcome: OutcomeNoCandidates, CandidatesChecked: checked}, nil
		}
		confidence = (best.Score + min(best.MatchRatio, 1)) / 2
	}

	return &Result{
		Outcome:           OutcomeMatch,
		RecordID:          best.Record.ID,
		IdentityID:        best.Record.IdentityID,
		Confidence:        confidence,
		HashDistance:      best.HashDistance,
		Similarity:        best.Similarity,
		MatchCount:        best.MatchCount,
		Metadata:          best.Record.Metadata,
		CandidatesChecked: checked,
	}, nil
}

// shortlist runs the matcher selected by the signature shape and
// converts its output into scored candidates.
func (o *Orchestrator) shortlist(ctx context.Context, sig signature.Signature, kind signature.Kind, policy Policy) ([]Candidate, error) {
	if sig.HasHash() {
		matches, err := o.hashMatcher.Search(ctx, *sig.Hash, kind, policy.BucketRadius, policy.HashThreshold, policy.Limit)
		if err != nil {
			return nil, err
		}
		candidates := make([]Candidate, len(matches))
		for i, m := range matches {
			candidates[i] = Candidate{
				Record:       m.Record,
				Score:        1 - float64(m.Distance)/float64(signature.MaxHashDistance),
				HashDistance: m.Distance,
			}
		}
		return candidates, nil
	}

	matches, err := o.embeddingMatcher.Search(ctx, sig.Embedding, kind, policy.Limit, policy.SimilarityThreshold)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = Candidate{
			Record:       m.Record,
			Score:        m.Similarity,
			HashDistance: -1,
			Similarity:   m.Similarity,
		}
	}
	return candidates, nil
}
