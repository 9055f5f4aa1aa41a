package match

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

// EmbeddingMatch is a single embedding-matcher result.
type EmbeddingMatch struct {
	Record     store.SignatureRecord
	Similarity float64
}

// EmbeddingMatcher ranks enrolled records by cosine similarity to a
// query embedding. By default it scans every record of the requested
// kind; embedding space has no cheap partition equivalent to the hash
// buckets, so the flat scan is the documented scaling limit. An
// in-memory HNSW index can be attached per kind to lift that limit
// behind the same contract.
type EmbeddingMatcher struct {
	store store.SignatureReader
	dim   int

	mu      sync.RWMutex
	indexes map[signature.Kind]*EmbeddingIndex
}

// NewEmbeddingMatcher creates an embedding matcher over the given store
// with the configured dimensionality.
func NewEmbeddingMatcher(s store.SignatureReader, dim int) *EmbeddingMatcher {
	return &EmbeddingMatcher{
		store:   s,
		dim:     dim,
		indexes: make(map[signature.Kind]*EmbeddingIndex),
	}
}

// AttachIndex routes searches for a kind through an HNSW index instead
// of the flat scan. Passing nil detaches.
func (m *EmbeddingMatcher) AttachIndex(kind signature.Kind, idx *EmbeddingIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx == nil {
		delete(m.indexes, kind)
		return
	}
	m.indexes[kind] = idx
}

// IndexRecord adds a record to the attached index for its kind, if any.
func (m *EmbeddingMatcher) IndexRecord(record *store.SignatureRecord) {
	if idx := m.index(record.Kind); idx != nil {
		idx.Add(record)
	}
}

// UnindexRecord hides a record from the attached index for a kind.
func (m *EmbeddingMatcher) UnindexRecord(kind signature.Kind, id int64) {
	if idx := m.index(kind); idx != nil {
		idx.Delete(id)
	}
}

func (m *EmbeddingMatcher) index(kind signature.Kind) *EmbeddingIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexes[kind]
}

// Search returns the top-k candidates with cosine similarity strictly
// above threshold, sorted descending. A query of the wrong length fails
// immediately with a dimension mismatch.
func (m *EmbeddingMatcher) Search(ctx context.Context, query []float32, kind signature.Kind, k int, threshold float64) ([]EmbeddingMatch, error) {
	if len(query) != m.dim {
		return nil, &store.DimensionMismatchError{Expected: m.dim, Actual: len(query)}
	}

	if idx := m.index(kind); idx != nil {
		return m.searchIndex(ctx, idx, query, k, threshold)
	}
	if vs, ok := m.store.(store.VectorSearcher); ok {
		return m.searchVector(ctx, vs, query, kind, k, threshold)
	}
	return m.searchScan(ctx, query, kind, k, threshold)
}

// searchVector lets a pgvector-backed store do the ranking; only the
// similarity threshold is applied here.
func (m *EmbeddingMatcher) searchVector(ctx context.Context, vs store.VectorSearcher, query []float32, kind signature.Kind, k int, threshold float64) ([]EmbeddingMatch, error) {
	records, distances, err := vs.FindSimilar(ctx, query, kind, k)
	if err != nil {
		return nil, budgetErr(fmt.Errorf("vector search: %w", err))
	}

	matches := make([]EmbeddingMatch, 0, len(records))
	for i := range records {
		sim := 1 - distances[i]
		if sim > threshold {
			matches = append(matches, EmbeddingMatch{Record: records[i], Similarity: sim})
		}
	}
	return matches, nil
}

func (m *EmbeddingMatcher) searchScan(ctx context.Context, query []float32, kind signature.Kind, k int, threshold float64) ([]EmbeddingMatch, error) {
	records, err := m.store.ListByKind(ctx, kind)
	if err != nil {
		return nil, budgetErr(fmt.Errorf("listing %s records: %w", kind, err))
	}

	matches := make([]EmbeddingMatch, 0, k)
	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, budgetErr(err)
		}
		r := &records[i]
		if len(r.Embedding) == 0 {
			continue
		}
		sim := signature.CosineSimilarity(query, r.Embedding)
		if sim > threshold {
			matches = append(matches, EmbeddingMatch{Record: *r, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// searchIndex asks the HNSW graph for a few times more neighbors than
// requested, then applies the similarity threshold. A graph id with no
// backing record is an internal-consistency fault: logged and skipped
// rather than failing the whole search.
func (m *EmbeddingMatcher) searchIndex(ctx context.Context, idx *EmbeddingIndex, query []float32, k int, threshold float64) ([]EmbeddingMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, budgetErr(err)
	}

	ids, distances, err := idx.Search(query, k*HNSWSearchMultiplier)
	if err != nil {
		return nil, fmt.Errorf("HNSW search: %w", err)
	}

	matches := make([]EmbeddingMatch, 0, k)
	for i, id := range ids {
		rec := idx.GetRecord(id)
		if rec == nil {
			log.Printf("HNSW returned id %d with no backing record; skipping", id)
			continue
		}
		sim := 1 - distances[i]
		if sim > threshold {
			matches = append(matches, EmbeddingMatch{Record: *rec, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
