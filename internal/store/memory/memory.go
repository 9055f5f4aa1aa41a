// Package memory provides an in-memory signature store. It backs unit
// tests and single-node deployments that do not need durability; the
// postgres package is the durable backend behind the same interfaces.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

type identityKey struct {
	identityID string
	kind       signature.Kind
}

// Store is an in-memory implementation of store.SignatureWriter. All
// operations are linearizable: a write holds the store mutex while it
// mutates both the record map and the bucket index, so no reader can
// observe a record with a stale bucket.
type Store struct {
	mu           sync.RWMutex
	embeddingDim int
	nextID       int64
	records      map[int64]*store.SignatureRecord
	byIdentity   map[identityKey]int64
	order        []int64
	buckets      *store.BucketIndex
}

// NewStore creates an empty in-memory store for the given embedding
// dimensionality.
func NewStore(embeddingDim int) *Store {
	return &Store{
		embeddingDim: embeddingDim,
		records:      make(map[int64]*store.SignatureRecord),
		byIdentity:   make(map[identityKey]int64),
		buckets:      store.NewBucketIndex(),
	}
}

// Put validates and stores a record, replacing any existing record for
// the same (identity, kind). The record id survives replacement.
func (s *Store) Put(ctx context.Context, record *store.SignatureRecord) (int64, error) {
	if err := store.ValidateRecord(record, s.embeddingDim); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey{record.IdentityID, record.Kind}
	stored := cloneRecord(record)
	stored.RecomputeBucket()

	if id, ok := s.byIdentity[key]; ok {
		// Replacement keeps the id but may move the record to a new
		// bucket. Both happen under the same lock.
		old := s.records[id]
		s.buckets.Remove(id, old.Bucket)
		stored.ID = id
		stored.CreatedAt = old.CreatedAt
		s.records[id] = stored
		s.buckets.Add(id, stored.Bucket)
		return id, nil
	}

	s.nextID++
	stored.ID = s.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.records[stored.ID] = stored
	s.byIdentity[key] = stored.ID
	s.order = append(s.order, stored.ID)
	s.buckets.Add(stored.ID, stored.Bucket)
	return stored.ID, nil
}

// Get retrieves a record by id.
func (s *Store) Get(ctx context.Context, id int64) (*store.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRecord(r), nil
}

// GetByIdentity retrieves the record for an (identity, kind) pair.
func (s *Store) GetByIdentity(ctx context.Context, identityID string, kind signature.Kind) (*store.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentity[identityKey{identityID, kind}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRecord(s.records[id]), nil
}

// ListByKind returns all records of a kind in insertion order.
func (s *Store) ListByKind(ctx context.Context, kind signature.Kind) ([]store.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.SignatureRecord
	for _, id := range s.order {
		r, ok := s.records[id]
		if !ok || r.Kind != kind {
			continue
		}
		out = append(out, *cloneRecord(r))
	}
	return out, nil
}

// CandidatesInRange returns hash-bearing records of the kind whose
// bucket lies within the clamped range, in insertion order.
func (s *Store) CandidatesInRange(ctx context.Context, kind signature.Kind, bucket, radius int) ([]store.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.buckets.CandidatesInRange(bucket, radius)
	var out []store.SignatureRecord
	for _, id := range ids {
		r, ok := s.records[id]
		if !ok || r.Kind != kind {
			continue
		}
		out = append(out, *cloneRecord(r))
	}
	return out, nil
}

// Count returns the total number of records stored.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// DeleteIdentity removes all records for an identity across kinds.
func (s *Store) DeleteIdentity(ctx context.Context, identityID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, kind := range []signature.Kind{signature.KindFace, signature.KindThumb} {
		key := identityKey{identityID, kind}
		id, ok := s.byIdentity[key]
		if !ok {
			continue
		}
		r := s.records[id]
		s.buckets.Remove(id, r.Bucket)
		delete(s.records, id)
		delete(s.byIdentity, key)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		deleted++
	}
	return deleted, nil
}

// RebuildBuckets reconstructs the derived bucket index from the record
// map. Only needed after manual surgery; normal writes keep the index
// in lockstep.
func (s *Store) RebuildBuckets(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]store.SignatureRecord, 0, len(s.records))
	for _, id := range s.order {
		records = append(records, *s.records[id])
	}
	s.buckets.Rebuild(records)
	return nil
}

// cloneRecord deep-copies a record so callers cannot mutate stored
// state through returned pointers.
func cloneRecord(r *store.SignatureRecord) *store.SignatureRecord {
	c := *r
	if r.Hash != nil {
		h := *r.Hash
		c.Hash = &h
	}
	if r.Embedding != nil {
		c.Embedding = make([]float32, len(r.Embedding))
		copy(c.Embedding, r.Embedding)
	}
	if r.Descriptors != nil {
		c.Descriptors = make([]signature.Descriptor, len(r.Descriptors))
		for i, d := range r.Descriptors {
			vec := make([]byte, len(d.Vector))
			copy(vec, d.Vector)
			c.Descriptors[i] = signature.Descriptor{X: d.X, Y: d.Y, Vector: vec}
		}
	}
	if r.Metadata != nil {
		c.Metadata = make([]byte, len(r.Metadata))
		copy(c.Metadata, r.Metadata)
	}
	return &c
}
