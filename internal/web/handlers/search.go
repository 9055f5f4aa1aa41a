package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jsykora/bioindex/internal/ingest"
	"github.com/jsykora/bioindex/internal/match"
	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

// SearchHandler resolves lookup requests through the orchestrator
type SearchHandler struct {
	orchestrator  *match.Orchestrator
	extractor     ingest.Extractor
	defaultPolicy match.Policy
	timeout       time.Duration
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(o *match.Orchestrator, e ingest.Extractor, defaultPolicy match.Policy, timeout time.Duration) *SearchHandler {
	return &SearchHandler{
		orchestrator:  o,
		extractor:     e,
		defaultPolicy: defaultPolicy,
		timeout:       timeout,
	}
}

// searchRequest carries the probe signature (or an image to extract it
// from) plus optional per-request policy overrides.
type searchRequest struct {
	Kind        string                 `json:"kind"`
	Hash        string                 `json:"hash,omitempty"`
	Embedding   []float32              `json:"embedding,omitempty"`
	Descriptors []signature.Descriptor `json:"descriptors,omitempty"`
	Image       []byte                 `json:"image,omitempty"`

	Policy *match.Policy `json:"policy,omitempty"`
}

// SearchResponse is the lookup result
type SearchResponse struct {
	Match             bool            `json:"match"`
	Outcome           string          `json:"outcome"`
	IdentityID        string          `json:"identity_id,omitempty"`
	RecordID          int64           `json:"record_id,omitempty"`
	Confidence        float64         `json:"confidence,omitempty"`
	HashDistance      *int            `json:"hash_distance,omitempty"`
	Similarity        *float64        `json:"similarity,omitempty"`
	MatchCount        int             `json:"match_count,omitempty"`
	CandidatesChecked int             `json:"candidates_checked"`
	SearchedBy        string          `json:"searched_by"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
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

	policy := h.defaultPolicy
	if req.Policy != nil {
		policy = req.Policy.Normalize(h.defaultPolicy)
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.orchestrator.Request(ctx, *sig, kind, policy)
	if err != nil {
		var dimErr *store.DimensionMismatchError
		switch {
		case errors.Is(err, store.ErrInvalidSignature), errors.As(err, &dimErr):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrTimeout):
			respondError(w, http.StatusGatewayTimeout, "search budget exceeded")
		default:
			log.Printf("search: %v", err)
			respondError(w, http.StatusInternalServerError, "search failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, buildSearchResponse(sig, result))
}

func buildSearchResponse(sig *signature.Signature, result *match.Result) SearchResponse {
	searchedBy := "embedding"
	if sig.HasHash() {
		searchedBy = "hash"
	}

	resp := SearchResponse{
		Match:             result.Outcome == match.OutcomeMatch,
		Outcome:           string(result.Outcome),
		CandidatesChecked: result.CandidatesChecked,
		SearchedBy:        searchedBy,
	}
	if result.Outcome != match.OutcomeMatch {
		return resp
	}

	resp.IdentityID = result.IdentityID
	resp.RecordID = result.RecordID
	resp.Confidence = result.Confidence
	resp.MatchCount = result.MatchCount
	resp.Metadata = result.Metadata
	if searchedBy == "hash" {
		d := result.HashDistance
		resp.HashDistance = &d
	} else {
		s := result.Similarity
		resp.Similarity = &s
	}
	return resp
}

// buildSignature resolves the request to a probe signature.
func (h *SearchHandler) buildSignature(r *http.Request, req *searchRequest, kind signature.Kind) (*signature.Signature, error) {
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
