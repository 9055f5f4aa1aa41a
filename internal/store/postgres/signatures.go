package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

// SignatureRepository provides PostgreSQL-backed signature storage. The
// bucket column is computed in Go from the hash and written in the same
// statement, so hash and bucket can never diverge.
type SignatureRepository struct {
	pool         *Pool
	embeddingDim int
}

// NewSignatureRepository creates a new PostgreSQL signature repository.
func NewSignatureRepository(pool *Pool, embeddingDim int) *SignatureRepository {
	return &SignatureRepository{pool: pool, embeddingDim: embeddingDim}
}

const signatureColumns = "id, identity_id, kind, hash, bucket, embedding, descriptors, metadata, created_at"

// Put validates and upserts a record for its (identity, kind) pair. A
// replacement keeps the existing record id.
func (r *SignatureRepository) Put(ctx context.Context, record *store.SignatureRecord) (int64, error) {
	if err := store.ValidateRecord(record, r.embeddingDim); err != nil {
		return 0, err
	}
	record.RecomputeBucket()

	var hash sql.NullInt64
	if record.Hash != nil {
		// The unsigned hash round-trips through BIGINT bit-for-bit.
		hash = sql.NullInt64{Int64: int64(*record.Hash), Valid: true}
	}
	var bucket sql.NullInt16
	if record.Bucket >= 0 {
		bucket = sql.NullInt16{Int16: int16(record.Bucket), Valid: true}
	}

	var embedding any
	if len(record.Embedding) > 0 {
		embedding = pgvector.NewVector(record.Embedding)
	}

	descriptors, err := marshalDescriptors(record.Descriptors)
	if err != nil {
		return 0, err
	}

	var metadata any
	if len(record.Metadata) > 0 {
		metadata = []byte(record.Metadata)
	}

	query := `
		INSERT INTO signatures (identity_id, kind, hash, bucket, embedding, descriptors, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identity_id, kind) DO UPDATE SET
			hash = EXCLUDED.hash,
			bucket = EXCLUDED.bucket,
			embedding = EXCLUDED.embedding,
			descriptors = EXCLUDED.descriptors,
			metadata = EXCLUDED.metadata
		RETURNING id
	`

	var id int64
	err = r.pool.QueryRow(ctx, query,
		record.IdentityID,
		string(record.Kind),
		hash,
		bucket,
		embedding,
		descriptors,
		metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert signature: %w", err)
	}

	record.ID = id
	return id, nil
}

// Get retrieves a record by id.
func (r *SignatureRepository) Get(ctx context.Context, id int64) (*store.SignatureRecord, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+signatureColumns+" FROM signatures WHERE id = $1", id)
	record, err := scanSignature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("signature %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetByIdentity retrieves the record for an (identity, kind) pair.
func (r *SignatureRepository) GetByIdentity(ctx context.Context, identityID string, kind signature.Kind) (*store.SignatureRecord, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+signatureColumns+" FROM signatures WHERE identity_id = $1 AND kind = $2",
		identityID, string(kind))
	record, err := scanSignature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("signature %s/%s: %w", identityID, kind, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListByKind returns all records of a kind in insertion order.
func (r *SignatureRepository) ListByKind(ctx context.Context, kind signature.Kind) ([]store.SignatureRecord, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+signatureColumns+" FROM signatures WHERE kind = $1 ORDER BY id",
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("query signatures by kind: %w", err)
	}
	defer rows.Close()

	return scanSignatures(rows)
}

// CandidatesInRange returns records of the kind whose bucket falls in
// [bucket-radius, bucket+radius] clamped to [0, 255], in insertion order.
func (r *SignatureRepository) CandidatesInRange(ctx context.Context, kind signature.Kind, bucket, radius int) ([]store.SignatureRecord, error) {
	lo, hi := store.ClampBucketRange(bucket, radius)

	rows, err := r.pool.Query(ctx, `
		SELECT `+signatureColumns+`
		FROM signatures
		WHERE kind = $1 AND bucket BETWEEN $2 AND $3
		ORDER BY id
	`, string(kind), lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query bucket candidates: %w", err)
	}
	defer rows.Close()

	return scanSignatures(rows)
}

// Count returns the total number of records stored.
func (r *SignatureRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM signatures").Scan(&count); err != nil {
		return 0, fmt.Errorf("count signatures: %w", err)
	}
	return count, nil
}

// DeleteIdentity removes all records for an identity, across kinds.
func (r *SignatureRepository) DeleteIdentity(ctx context.Context, identityID string) (int, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM signatures WHERE identity_id = $1", identityID)
	if err != nil {
		return 0, fmt.Errorf("delete identity signatures: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return int(n), nil
}

// FindSimilar ranks records of the kind by cosine distance to the query
// using the pgvector HNSW index.
func (r *SignatureRepository) FindSimilar(ctx context.Context, query []float32, kind signature.Kind, limit int) ([]store.SignatureRecord, []float64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+signatureColumns+`, embedding <=> $1::vector AS distance
		FROM signatures
		WHERE kind = $2 AND embedding IS NOT NULL
		ORDER BY distance
		LIMIT $3
	`, pgvector.NewVector(query), string(kind), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar signatures: %w", err)
	}
	defer rows.Close()

	var records []store.SignatureRecord
	var distances []float64
	for rows.Next() {
		var dist float64
		record, err := scanSignatureRow(rows, &dist)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, *record)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate similar signatures: %w", err)
	}
	return records, distances, nil
}

// RepairBuckets recomputes every bucket from its hash and fixes rows
// where the two disagree. Returns the number of repaired rows.
func (r *SignatureRepository) RepairBuckets(ctx context.Context) (int, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, hash, bucket FROM signatures WHERE hash IS NOT NULL")
	if err != nil {
		return 0, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()

	type repair struct {
		id     int64
		bucket int
	}
	var repairs []repair
	for rows.Next() {
		var id int64
		var hash int64
		var bucket sql.NullInt16
		if err := rows.Scan(&id, &hash, &bucket); err != nil {
			return 0, fmt.Errorf("scan bucket row: %w", err)
		}
		want := signature.DeriveBucket(uint64(hash))
		if !bucket.Valid || int(bucket.Int16) != want {
			repairs = append(repairs, repair{id: id, bucket: want})
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate bucket rows: %w", err)
	}

	for _, rep := range repairs {
		if _, err := r.pool.Exec(ctx, "UPDATE signatures SET bucket = $1 WHERE id = $2", rep.bucket, rep.id); err != nil {
			return 0, fmt.Errorf("repair bucket for %d: %w", rep.id, err)
		}
	}
	return len(repairs), nil
}

// EmbeddingColumnDim reports the vector column width the schema was
// created with. The migration fixes the width at table creation, so a
// changed EMBEDDING_DIM has to be caught here instead of failing on
// the first insert. pgvector stores the dimension as the column's
// type modifier.
func (r *SignatureRepository) EmbeddingColumnDim(ctx context.Context) (int, error) {
	var dim int
	err := r.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'signatures'::regclass AND attname = 'embedding'
	`).Scan(&dim)
	if err != nil {
		return 0, fmt.Errorf("query embedding column dimension: %w", err)
	}
	return dim, nil
}

func marshalDescriptors(descs []signature.Descriptor) (any, error) {
	if len(descs) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(descs)
	if err != nil {
		return nil, fmt.Errorf("marshal descriptors: %w", err)
	}
	return data, nil
}

// scanSignatureRow scans a single row into a SignatureRecord, with
// optional extra scan destinations appended after the standard columns.
func scanSignatureRow(scanner interface{ Scan(...any) error }, extraDest ...any) (*store.SignatureRecord, error) {
	var record store.SignatureRecord
	var kind string
	var hash sql.NullInt64
	var bucket sql.NullInt16
	var embedding sql.NullString
	var descriptors, metadata []byte

	dest := make([]any, 0, 9+len(extraDest))
	dest = append(dest,
		&record.ID,
		&record.IdentityID,
		&kind,
		&hash,
		&bucket,
		&embedding,
		&descriptors,
		&metadata,
		&record.CreatedAt,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan signature: %w", err)
	}

	record.Kind = signature.Kind(kind)
	if hash.Valid {
		h := uint64(hash.Int64)
		record.Hash = &h
	}
	record.Bucket = -1
	if bucket.Valid {
		record.Bucket = int(bucket.Int16)
	}
	if embedding.Valid {
		var vec pgvector.Vector
		if err := vec.Scan(embedding.String); err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
		record.Embedding = vec.Slice()
	}
	if len(descriptors) > 0 {
		if err := json.Unmarshal(descriptors, &record.Descriptors); err != nil {
			return nil, fmt.Errorf("unmarshal descriptors: %w", err)
		}
	}
	if len(metadata) > 0 {
		record.Metadata = json.RawMessage(metadata)
	}

	return &record, nil
}

func scanSignature(row *sql.Row) (*store.SignatureRecord, error) {
	return scanSignatureRow(row)
}

func scanSignatures(rows *sql.Rows) ([]store.SignatureRecord, error) {
	var records []store.SignatureRecord
	for rows.Next() {
		record, err := scanSignatureRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return records, nil
}

// Verify interface compliance.
var _ store.SignatureReader = (*SignatureRepository)(nil)
var _ store.SignatureWriter = (*SignatureRepository)(nil)
var _ store.VectorSearcher = (*SignatureRepository)(nil)
