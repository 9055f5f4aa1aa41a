package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIdentitiesGet(t *testing.T) {
	s, o := newTestEnv(t)
	register := NewRegisterHandler(s, o, nil)
	handler := NewIdentitiesHandler(s, o)

	enroll(t, register, map[string]any{
		"identity_id": "alice",
		"kind":        "face",
		"hash":        "f0f0f0f0f0f0f0f0",
	})
	enroll(t, register, map[string]any{
		"identity_id": "alice",
		"kind":        "thumb",
		"embedding":   []float32{1, 0, 0, 0},
	})

	req := requestWithChiParams(
		httptest.NewRequest("GET", "/api/v1/identities/alice", nil),
		map[string]string{"id": "alice"},
	)
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		IdentityID string          `json:"identity_id"`
		Records    []recordSummary `json:"records"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.IdentityID != "alice" {
		t.Errorf("expected identity alice, got %s", resp.IdentityID)
	}
	if len(resp.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(resp.Records))
	}
	for _, record := range resp.Records {
		switch record.Kind {
		case "face":
			if !record.HasHash || record.HasEmbedding {
				t.Errorf("face record shape wrong: %+v", record)
			}
		case "thumb":
			if record.HasHash || !record.HasEmbedding {
				t.Errorf("thumb record shape wrong: %+v", record)
			}
		default:
			t.Errorf("unexpected kind %s", record.Kind)
		}
	}
}

func TestIdentitiesGetNotFound(t *testing.T) {
	s, o := newTestEnv(t)
	handler := NewIdentitiesHandler(s, o)

	req := requestWithChiParams(
		httptest.NewRequest("GET", "/api/v1/identities/nobody", nil),
		map[string]string{"id": "nobody"},
	)
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestIdentitiesDelete(t *testing.T) {
	s, o := newTestEnv(t)
	register := NewRegisterHandler(s, o, nil)
	search := NewSearchHandler(o, nil, testPolicy(), 5*time.Second)
	handler := NewIdentitiesHandler(s, o)

	enroll(t, register, map[string]any{
		"identity_id": "alice",
		"kind":        "face",
		"hash":        "f0f0f0f0f0f0f0f0",
	})
	enroll(t, register, map[string]any{
		"identity_id": "alice",
		"kind":        "thumb",
		"embedding":   []float32{1, 0, 0, 0},
	})

	req := requestWithChiParams(
		httptest.NewRequest("DELETE", "/api/v1/identities/alice", nil),
		map[string]string{"id": "alice"},
	)
	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		IdentityID string `json:"identity_id"`
		Deleted    int    `json:"deleted"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Deleted != 2 {
		t.Errorf("expected 2 deleted records, got %d", resp.Deleted)
	}

	// The deleted identity must be unreachable by search.
	recorder = httptest.NewRecorder()
	search.Search(recorder, jsonRequest(t, "POST", "/api/v1/search", map[string]any{
		"kind": "face",
		"hash": "f0f0f0f0f0f0f0f0",
	}))
	var searchResp SearchResponse
	parseJSONResponse(t, recorder, &searchResp)
	if searchResp.Match {
		t.Error("deleted identity still matched")
	}
}

func TestIdentitiesDeleteNotFound(t *testing.T) {
	s, o := newTestEnv(t)
	handler := NewIdentitiesHandler(s, o)

	req := requestWithChiParams(
		httptest.NewRequest("DELETE", "/api/v1/identities/nobody", nil),
		map[string]string{"id": "nobody"},
	)
	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestIdentitiesSignatureDebug(t *testing.T) {
	s, o := newTestEnv(t)
	register := NewRegisterHandler(s, o, nil)
	handler := NewIdentitiesHandler(s, o)

	enroll(t, register, map[string]any{
		"identity_id": "alice",
		"kind":        "face",
		"hash":        "f0f0f0f0f0f0f0f0",
	})

	req := requestWithChiParams(
		httptest.NewRequest("GET", "/api/v1/identities/alice/signature", nil),
		map[string]string{"id": "alice"},
	)
	recorder := httptest.NewRecorder()
	handler.Signature(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp signatureDebug
	parseJSONResponse(t, recorder, &resp)
	if resp.Hash != "f0f0f0f0f0f0f0f0" {
		t.Errorf("expected formatted hash, got %q", resp.Hash)
	}
	if resp.Bucket == nil || *resp.Bucket != 0xf0 {
		t.Errorf("expected bucket 0xf0, got %v", resp.Bucket)
	}
	if resp.EmbeddingDim != 0 {
		t.Errorf("expected embedding_dim 0, got %d", resp.EmbeddingDim)
	}
}

func TestIdentitiesSignatureKindParam(t *testing.T) {
	s, o := newTestEnv(t)
	register := NewRegisterHandler(s, o, nil)
	handler := NewIdentitiesHandler(s, o)

	enroll(t, register, map[string]any{
		"identity_id": "alice",
		"kind":        "thumb",
		"embedding":   []float32{1, 0, 0, 0},
	})

	// Only a thumb record exists, so the face default misses.
	req := requestWithChiParams(
		httptest.NewRequest("GET", "/api/v1/identities/alice/signature", nil),
		map[string]string{"id": "alice"},
	)
	recorder := httptest.NewRecorder()
	handler.Signature(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)

	req = requestWithChiParams(
		httptest.NewRequest("GET", "/api/v1/identities/alice/signature?kind=thumb", nil),
		map[string]string{"id": "alice"},
	)
	recorder = httptest.NewRecorder()
	handler.Signature(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	var resp signatureDebug
	parseJSONResponse(t, recorder, &resp)
	if resp.EmbeddingDim != testEmbeddingDim {
		t.Errorf("expected embedding_dim %d, got %d", testEmbeddingDim, resp.EmbeddingDim)
	}
	if resp.Bucket != nil {
		t.Error("bucket should be omitted for hash-less records")
	}
}

func TestIdentitiesSignatureInvalidKind(t *testing.T) {
	s, o := newTestEnv(t)
	handler := NewIdentitiesHandler(s, o)

	req := requestWithChiParams(
		httptest.NewRequest("GET", "/api/v1/identities/alice/signature?kind=iris", nil),
		map[string]string{"id": "alice"},
	)
	recorder := httptest.NewRecorder()
	handler.Signature(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}
