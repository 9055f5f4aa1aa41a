package match

import (
	"context"
	"sort"

	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

// Candidate is a shortlist entry flowing from a matcher into the
// reranker and out to the orchestrator.
type Candidate struct {
	Record store.SignatureRecord

	// Score is the base confidence in [0, 1]: 1 - distance/64 for hash
	// candidates, cosine similarity for embedding candidates.
	Score float64

	// HashDistance is the Hamming distance for hash candidates, -1
	// otherwise.
	HashDistance int

	// Similarity is the cosine similarity for embedding candidates, 0
	// otherwise.
	Similarity float64

	// MatchCount and MatchRatio are filled by the reranker.
	MatchCount int
	MatchRatio float64
}

// Reranker re-scores a shortlist by descriptor correspondence. Hash and
// embedding similarity are coarse proxies; counting mutually consistent
// keypoint matches is a higher-precision, higher-cost confirmation
// applied only to the small shortlist to bound the cost.
type Reranker struct {
	cutoff     int
	minMatches int
}

// NewReranker creates a reranker with the given good-match distance
// cutoff and minimum confirmation count.
func NewReranker(cutoff, minMatches int) *Reranker {
	return &Reranker{cutoff: cutoff, minMatches: minMatches}
}

// Rerank counts descriptor correspondences for every candidate and
// re-sorts the list by match count descending; the prior ranking breaks
// ties. Candidates without stored descriptors keep a zero count.
func (r *Reranker) Rerank(ctx context.Context, query []signature.Descriptor, candidates []Candidate) ([]Candidate, error) {
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, budgetErr(err)
		}
		c := &candidates[i]
		if len(c.Record.Descriptors) == 0 {
			continue
		}
		c.MatchCount = signature.MatchDescriptors(query, c.Record.Descriptors, r.cutoff)
		if denom := min(len(query), len(c.Record.Descriptors)); denom > 0 {
			c.MatchRatio = float64(c.MatchCount) / float64(denom)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].MatchCount > candidates[j].MatchCount
	})
	return candidates, nil
}

// Confirmed reports whether a reranked candidate has enough good
// correspondences to count as a verified match.
func (r *Reranker) Confirmed(c *Candidate) bool {
	return c.MatchCount >= r.minMatches
}
