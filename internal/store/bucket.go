package store

import (
	"sort"
	"sync"

	"github.com/jsykora/bioindex/internal/signature"
)

// BucketIndex maps each coarse hash partition to the ids of the records
// whose hash falls into it. It is purely derived state: it can be
// rebuilt from the signature store at any time and has no durability
// requirement of its own. Readers always see either the pre- or the
// post-rebuild view, never a mix.
type BucketIndex struct {
	mu      sync.RWMutex
	buckets [signature.BucketCount][]int64
}

// NewBucketIndex creates an empty bucket index.
func NewBucketIndex() *BucketIndex {
	return &BucketIndex{}
}

// Add registers a record id under its bucket. Buckets outside [0, 255]
// (records without a hash) are ignored.
func (b *BucketIndex) Add(id int64, bucket int) {
	if bucket < 0 || bucket >= signature.BucketCount {
		return
	}
	b.mu.Lock()
	b.buckets[bucket] = append(b.buckets[bucket], id)
	b.mu.Unlock()
}

// Remove deletes a record id from its bucket.
func (b *BucketIndex) Remove(id int64, bucket int) {
	if bucket < 0 || bucket >= signature.BucketCount {
		return
	}
	b.mu.Lock()
	ids := b.buckets[bucket]
	for i, v := range ids {
		if v == id {
			b.buckets[bucket] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

// CandidatesInRange returns the union of id sets for buckets in
// [bucket-radius, bucket+radius], clamped to [0, 255], sorted by id.
// Record ids are assigned monotonically, so id order is insertion
// order. Increasing the radius never shrinks the result set.
func (b *BucketIndex) CandidatesInRange(bucket, radius int) []int64 {
	lo, hi := ClampBucketRange(bucket, radius)

	b.mu.RLock()
	var ids []int64
	for bk := lo; bk <= hi; bk++ {
		ids = append(ids, b.buckets[bk]...)
	}
	b.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Rebuild replaces the entire index from a record listing in one atomic
// swap. Records without a hash are skipped.
func (b *BucketIndex) Rebuild(records []SignatureRecord) {
	var fresh [signature.BucketCount][]int64
	for i := range records {
		r := &records[i]
		if r.Hash == nil {
			continue
		}
		bk := signature.DeriveBucket(*r.Hash)
		fresh[bk] = append(fresh[bk], r.ID)
	}

	b.mu.Lock()
	b.buckets = fresh
	b.mu.Unlock()
}

// Count returns the total number of indexed ids.
func (b *BucketIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for i := range b.buckets {
		total += len(b.buckets[i])
	}
	return total
}

// ClampBucketRange clamps [bucket-radius, bucket+radius] to the valid
// bucket domain [0, 255].
func ClampBucketRange(bucket, radius int) (int, int) {
	lo := bucket - radius
	hi := bucket + radius
	if lo < 0 {
		lo = 0
	}
	if hi >= signature.BucketCount {
		hi = signature.BucketCount - 1
	}
	return lo, hi
}
