package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

const testDim = 4

func hashPtr(h uint64) *uint64 { return &h }

func faceRecord(identityID string, hash uint64) *store.SignatureRecord {
	return &store.SignatureRecord{
		IdentityID: identityID,
		Kind:       signature.KindFace,
		Hash:       hashPtr(hash),
		Metadata:   json.RawMessage(`{"first_name":"Jan"}`),
	}
}

func TestPutAssignsBucket(t *testing.T) {
	s := NewStore(testDim)
	ctx := context.Background()

	id, err := s.Put(ctx, faceRecord("u1", 0xAB00000000000001))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Bucket != 0xAB {
		t.Errorf("Bucket = %d; want %d", got.Bucket, 0xAB)
	}
	if got.Bucket != signature.DeriveBucket(*got.Hash) {
		t.Errorf("bucket %d inconsistent with hash %x", got.Bucket, *got.Hash)
	}
}

func TestPutValidation(t *testing.T) {
	s := NewStore(testDim)
	ctx := context.Background()

	tests := []struct {
		name   string
		record *store.SignatureRecord
		check  func(error) bool
	}{
		{
			"missing identity",
			&store.SignatureRecord{Kind: signature.KindFace, Hash: hashPtr(1)},
			func(err error) bool { return errors.Is(err, store.ErrInvalidSignature) },
		},
		{
			"bad kind",
			&store.SignatureRecord{IdentityID: "u1", Kind: "iris", Hash: hashPtr(1)},
			func(err error) bool { return errors.Is(err, store.ErrInvalidSignature) },
		},
		{
			"no hash and no embedding",
			&store.SignatureRecord{IdentityID: "u1", Kind: signature.KindFace},
			func(err error) bool { return errors.Is(err, store.ErrInvalidSignature) },
		},
		{
			"wrong embedding dimension",
			&store.SignatureRecord{IdentityID: "u1", Kind: signature.KindFace, Embedding: []float32{1, 2}},
			func(err error) bool {
				var dm *store.DimensionMismatchError
				return errors.As(err, &dm) && dm.Expected == testDim && dm.Actual == 2
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Put(ctx, tc.record)
			if err == nil {
				t.Fatal("Put succeeded; want error")
			}
			if !tc.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPutReplacesSameIdentityKind(t *testing.T) {
	s := NewStore(testDim)
	ctx := context.Background()

	id1, err := s.Put(ctx, faceRecord("u1", 0x0100000000000000))
	if err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	id2, err := s.Put(ctx, faceRecord("u1", 0xFE00000000000000))
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("replacement changed record id: %d -> %d", id1, id2)
	}

	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("Count = %d; want 1", count)
	}

	// The record must have moved to the new bucket atomically.
	if recs, _ := s.CandidatesInRange(ctx, signature.KindFace, 0x01, 0); len(recs) != 0 {
		t.Errorf("old bucket still holds the record")
	}
	recs, _ := s.CandidatesInRange(ctx, signature.KindFace, 0xFE, 0)
	if len(recs) != 1 || recs[0].ID != id1 {
		t.Errorf("new bucket lookup = %v; want record %d", recs, id1)
	}
}

func TestPutIdempotent(t *testing.T) {
	s := NewStore(testDim)
	ctx := context.Background()

	id1, _ := s.Put(ctx, faceRecord("u1", 0xAA00000000000000))
	id2, err := s.Put(ctx, faceRecord("u1", 0xAA00000000000000))
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %d vs %d", id1, id2)
	}
	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("Count = %d; want 1", count)
	}
}

func TestGetNotFound(t *testing.T) {
	s := NewStore(testDim)
	ctx := context.Background()

	if _, err := s.Get(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(42) error = %v; want ErrNotFound", err)
	}
	if _, err := s.GetByIdentity(ctx, "nobody", signature.KindFace); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByIdentity error = %v; want ErrNotFound", err)
	}
}

func TestDeleteIdentityCascades(t *testing.T) {
	s := NewStore(testDim)
	ctx := context.Background()

	s.Put(ctx, faceRecord("u1", 0x1100000000000000))
	s.Put(ctx, &store.SignatureRecord{
		IdentityID: "u1",
		Kind:       signature.KindThumb,
		Hash:       hashPtr(0x2200000000000000),
	})
	s.Put(ctx, faceRecord("u2", 0x1100000000000000))

	deleted, err := s.DeleteIdentity(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteIdentity failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d; want 2", deleted)
	}

	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("Count = %d; want 1", count)
	}

	// No orphan left in the bucket index either.
	recs, _ := s.CandidatesInRange(ctx, signature.KindThumb, 0x22, 0)
	if len(recs) != 0 {
		t.Errorf("orphan thumb record survived delete: %v", recs)
	}
}

func TestCandidatesInRangeFiltersKind(t *testing.T) {
	s := NewStore(testDim)
	ctx := context.Background()

	s.Put(ctx, faceRecord("u1", 0x4000000000000000))
	s.Put(ctx, &store.SignatureRecord{
		IdentityID: "u2",
		Kind:       signature.KindThumb,
		Hash:       hashPtr(0x4000000000000000),
	})

	recs, err := s.CandidatesInRange(ctx, signature.KindFace, 0x40, 0)
	if err != nil {
		t.Fatalf("CandidatesInRange failed: %v", err)
	}
	if len(recs) != 1 || recs[0].IdentityID != "u1" {
		t.Errorf("CandidatesInRange = %v; want only u1's face record", recs)
	}
}

func TestListByKindInsertionOrder(t *testing.T) {
	s := NewStore(testDim)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		s.Put(ctx, faceRecord(u, 0x1000000000000000))
	}

	recs, err := s.ListByKind(ctx, signature.KindFace)
	if err != nil {
		t.Fatalf("ListByKind failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("ListByKind returned %d records; want 3", len(recs))
	}
	for i, want := range []string{"u1", "u2", "u3"} {
		if recs[i].IdentityID != want {
			t.Errorf("recs[%d].IdentityID = %s; want %s", i, recs[i].IdentityID, want)
		}
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := NewStore(testDim)
	ctx := context.Background()

	id, _ := s.Put(ctx, faceRecord("u1", 0x1000000000000000))
	got, _ := s.Get(ctx, id)
	*got.Hash = 0xFFFFFFFFFFFFFFFF
	got.Metadata[0] = 'X'

	again, _ := s.Get(ctx, id)
	if *again.Hash != 0x1000000000000000 {
		t.Error("mutating a returned record changed stored state")
	}
	if again.Metadata[0] == 'X' {
		t.Error("mutating returned metadata changed stored state")
	}
}

// Writes racing with reads must never expose a record whose bucket
// disagrees with its hash.
func TestConcurrentReadWriteConsistency(t *testing.T) {
	s := NewStore(testDim)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		hashes := []uint64{0x0100000000000000, 0xFE00000000000000}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			s.Put(ctx, faceRecord("u1", hashes[i%2]))
		}
	}()

	for i := 0; i < 200; i++ {
		for _, bucket := range []int{0x01, 0xFE} {
			recs, err := s.CandidatesInRange(ctx, signature.KindFace, bucket, 0)
			if err != nil {
				t.Fatalf("CandidatesInRange failed: %v", err)
			}
			for _, r := range recs {
				if r.Hash == nil || signature.DeriveBucket(*r.Hash) != bucket {
					t.Fatalf("record %d observed in bucket %d with hash %v", r.ID, bucket, r.Hash)
				}
			}
		}
	}
	close(stop)
	wg.Wait()
}
