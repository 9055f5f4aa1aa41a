package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jsykora/bioindex/internal/config"
	"github.com/jsykora/bioindex/internal/match"
	"github.com/jsykora/bioindex/internal/store/memory"
)

// Small embedding dimension keeps test vectors readable.
const testEmbeddingDim = 4

func testPolicy() match.Policy {
	return match.Policy{
		BucketRadius:        10,
		HashThreshold:       16,
		SimilarityThreshold: 0.5,
		Limit:               10,
		AmbiguityGap:        0.05,
		RerankCutoff:        50,
		RerankMinMatches:    20,
	}
}

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			APIKey:        "test-api-key",
			SessionSecret: "test-secret",
			SessionTTL:    time.Hour,
		},
		Search: config.SearchConfig{
			EmbeddingDim: testEmbeddingDim,
			Timeout:      5 * time.Second,
		},
		Policy: testPolicy(),
	}
}

// newTestEnv creates a memory store and an orchestrator over it
func newTestEnv(t *testing.T) (*memory.Store, *match.Orchestrator) {
	t.Helper()
	s := memory.NewStore(testEmbeddingDim)
	return s, match.NewOrchestrator(s, testEmbeddingDim)
}

// jsonRequest creates a request with a JSON-encoded body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
