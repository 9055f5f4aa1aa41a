package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/jsykora/bioindex/internal/identity"
	"github.com/jsykora/bioindex/internal/ingest"
	"github.com/jsykora/bioindex/internal/match"
	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

// RegisterHandler enrolls identities
type RegisterHandler struct {
	store        store.SignatureWriter
	orchestrator *match.Orchestrator
	extractor    ingest.Extractor
}

// NewRegisterHandler creates a new register handler. The extractor may
// be nil when only precomputed signatures are accepted.
func NewRegisterHandler(s store.SignatureWriter, o *match.Orchestrator, e ingest.Extractor) *RegisterHandler {
	return &RegisterHandler{store: s, orchestrator: o, extractor: e}
}

// registerRequest carries either a precomputed signature or a raw image
// to run through the extractor, plus the identity's metadata.
type registerRequest struct {
	IdentityID  string                 `json:"identity_id,omitempty"`
	Kind        string                 `json:"kind"`
	Hash        string                 `json:"hash,omitempty"`
	Embedding   []float32              `json:"embedding,omitempty"`
	Descriptors []signature.Descriptor `json:"descriptors,omitempty"`
	Image       []byte                 `json:"image,omitempty"`

	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	Address        string `json:"address,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

// identityMetadata is the opaque payload stored with each record and
// returned verbatim on a match.
type identityMetadata struct {
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	NormalizedName string `json:"normalized_name,omitempty"`
	Address        string `json:"address,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

// RegisterResponse reports the enrolled record
type RegisterResponse struct {
	IdentityID string `json:"identity_id"`
	RecordID   int64  `json:"record_id"`
	Kind       string `json:"kind"`
}

// Register handles POST /api/v1/identities
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	kind, err := signature.ParseKind(req.Kind)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sig, err := h.buildSignature(r, &req, kind)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	identityID := req.IdentityID
	if identityID == "" {
		identityID = uuid.NewString()
	}

	record := &store.SignatureRecord{
		IdentityID:  identityID,
		Kind:        kind,
		Hash:        sig.Hash,
		Embedding:   sig.Embedding,
		Descriptors: sig.Descriptors,
	}

	if meta := buildMetadata(&req); meta != nil {
		record.Metadata = meta
	}

	id, err := h.store.Put(r.Context(), record)
	if err != nil {
		var dimErr *store.DimensionMismatchError
		switch {
		case errors.Is(err, store.ErrInvalidSignature), errors.As(err, &dimErr):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("register %s: %v", sanitizeForLog(identityID), err)
			respondError(w, http.StatusInternalServerError, "failed to store signature")
		}
		return
	}

	// Keep any attached ANN index in step with the store.
	h.orchestrator.EmbeddingMatcher().IndexRecord(record)

	respondJSON(w, http.StatusCreated, RegisterResponse{
		IdentityID: identityID,
		RecordID:   id,
		Kind:       string(kind),
	})
}

// buildSignature resolves the request to a signature, running the image
// through the extractor when no precomputed fields are supplied.
func (h *RegisterHandler) buildSignature(r *http.Request, req *registerRequest, kind signature.Kind) (*signature.Signature, error) {
	sig := &signature.Signature{
		Embedding:   req.Embedding,
		Descriptors: req.Descriptors,
	}
	if req.Hash != "" {
		hash, err := signature.ParseHash(req.Hash)
		if err != nil {
			return nil, err
		}
		sig.Hash = &hash
	}

	if sig.HasHash() || sig.HasEmbedding() {
		return sig, nil
	}

	if len(req.Image) == 0 {
		return nil, errors.New("either a signature or an image is required")
	}
	if h.extractor == nil {
		return nil, errors.New("no extractor configured for image input")
	}

	extracted, err := h.extractor.Extract(r.Context(), req.Image, kind)
	if err != nil {
		return nil, fmt.Errorf("feature extraction failed: %w", err)
	}
	return extracted, nil
}

func buildMetadata(req *registerRequest) json.RawMessage {
	if req.FirstName == "" && req.LastName == "" && req.Address == "" && req.AdditionalInfo == "" {
		return nil
	}
	meta := identityMetadata{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		DisplayName:    identity.DisplayName(req.FirstName, req.LastName),
		Address:        req.Address,
		AdditionalInfo: req.AdditionalInfo,
	}
	meta.NormalizedName = identity.NormalizeName(meta.DisplayName)

	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return data
}
