package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jsykora/bioindex/internal/match"
	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

// IdentitiesHandler serves per-identity record operations
type IdentitiesHandler struct {
	store        store.SignatureWriter
	orchestrator *match.Orchestrator
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(s store.SignatureWriter, o *match.Orchestrator) *IdentitiesHandler {
	return &IdentitiesHandler{store: s, orchestrator: o}
}

// recordSummary describes one enrolled record without exposing the raw
// signature payload.
type recordSummary struct {
	RecordID        int64           `json:"record_id"`
	Kind            string          `json:"kind"`
	HasHash         bool            `json:"has_hash"`
	HasEmbedding    bool            `json:"has_embedding"`
	DescriptorCount int             `json:"descriptor_count"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Get handles GET /api/v1/identities/{id}
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	identityID := chi.URLParam(r, "id")

	var records []recordSummary
	for _, kind := range []signature.Kind{signature.KindFace, signature.KindThumb} {
		record, err := h.store.GetByIdentity(r.Context(), identityID, kind)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Printf("get identity %s: %v", sanitizeForLog(identityID), err)
			respondError(w, http.StatusInternalServerError, "failed to load identity")
			return
		}
		records = append(records, recordSummary{
			RecordID:        record.ID,
			Kind:            string(record.Kind),
			HasHash:         record.HasHash(),
			HasEmbedding:    len(record.Embedding) > 0,
			DescriptorCount: len(record.Descriptors),
			Metadata:        record.Metadata,
			CreatedAt:       record.CreatedAt,
		})
	}

	if len(records) == 0 {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"identity_id": identityID,
		"records":     records,
	})
}

// Delete handles DELETE /api/v1/identities/{id}. All of the identity's
// records go, across kinds.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identityID := chi.URLParam(r, "id")

	// Collect record ids first so the ANN index can be updated after the
	// store delete.
	type indexed struct {
		kind signature.Kind
		id   int64
	}
	var stale []indexed
	for _, kind := range []signature.Kind{signature.KindFace, signature.KindThumb} {
		record, err := h.store.GetByIdentity(r.Context(), identityID, kind)
		if err != nil {
			continue
		}
		stale = append(stale, indexed{kind: kind, id: record.ID})
	}

	deleted, err := h.store.DeleteIdentity(r.Context(), identityID)
	if err != nil {
		log.Printf("delete identity %s: %v", sanitizeForLog(identityID), err)
		respondError(w, http.StatusInternalServerError, "failed to delete identity")
		return
	}
	if deleted == 0 {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	for _, s := range stale {
		h.orchestrator.EmbeddingMatcher().UnindexRecord(s.kind, s.id)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"identity_id": identityID,
		"deleted":     deleted,
	})
}

// signatureDebug exposes the stored signature's shape for diagnostics.
type signatureDebug struct {
	RecordID        int64  `json:"record_id"`
	Kind            string `json:"kind"`
	Hash            string `json:"hash,omitempty"`
	Bucket          *int   `json:"bucket,omitempty"`
	EmbeddingDim    int    `json:"embedding_dim"`
	DescriptorCount int    `json:"descriptor_count"`
}

// Signature handles GET /api/v1/identities/{id}/signature. The kind
// defaults to face and can be overridden with ?kind=thumb.
func (h *IdentitiesHandler) Signature(w http.ResponseWriter, r *http.Request) {
	identityID := chi.URLParam(r, "id")

	kind := signature.KindFace
	if q := r.URL.Query().Get("kind"); q != "" {
		parsed, err := signature.ParseKind(q)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = parsed
	}

	record, err := h.store.GetByIdentity(r.Context(), identityID, kind)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	if err != nil {
		log.Printf("signature debug %s: %v", sanitizeForLog(identityID), err)
		respondError(w, http.StatusInternalServerError, "failed to load signature")
		return
	}

	debug := signatureDebug{
		RecordID:        record.ID,
		Kind:            string(record.Kind),
		EmbeddingDim:    len(record.Embedding),
		DescriptorCount: len(record.Descriptors),
	}
	if record.HasHash() {
		debug.Hash = signature.FormatHash(*record.Hash)
		b := record.Bucket
		debug.Bucket = &b
	}

	respondJSON(w, http.StatusOK, debug)
}
