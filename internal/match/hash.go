package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

// HashMatch is a single hash-matcher result.
type HashMatch struct {
	Record   store.SignatureRecord
	Distance int
}

// HashMatcher ranks enrolled records by Hamming distance to a query
// hash, pruning candidates through the bucket index first.
type HashMatcher struct {
	store store.SignatureReader
}

// NewHashMatcher creates a hash matcher over the given store.
func NewHashMatcher(s store.SignatureReader) *HashMatcher {
	return &HashMatcher{store: s}
}

// Search returns candidates with Hamming distance strictly below
// threshold, sorted ascending by distance with insertion order breaking
// ties, truncated to limit. An empty result is a normal no-match
// outcome, not an error.
func (m *HashMatcher) Search(ctx context.Context, queryHash uint64, kind signature.Kind, radius, threshold, limit int) ([]HashMatch, error) {
	bucket := signature.DeriveBucket(queryHash)

	candidates, err := m.store.CandidatesInRange(ctx, kind, bucket, radius)
	if err != nil {
		return nil, budgetErr(fmt.Errorf("fetching candidates: %w", err))
	}

	matches := make([]HashMatch, 0, len(candidates))
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, budgetErr(err)
		}
		r := &candidates[i]
		if r.Hash == nil {
			continue
		}
		if derived := signature.DeriveBucket(*r.Hash); r.Bucket != derived {
			// Stale bucket is a consistency fault: the hash is the
			// source of truth, so score it anyway and flag the record.
			log.Printf("record %d has bucket %d but hash derives %d; treating hash as authoritative",
				r.ID, r.Bucket, derived)
		}
		d := signature.HammingDistance(*r.Hash, queryHash)
		if d < threshold {
			matches = append(matches, HashMatch{Record: *r, Distance: d})
		}
	}

	// Candidates arrive in insertion order; a stable sort preserves it
	// among equal distances.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// budgetErr translates a deadline expiry into the store's timeout
// error so callers never mistake an aborted scan for a completed one.
func budgetErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	}
	return err
}
