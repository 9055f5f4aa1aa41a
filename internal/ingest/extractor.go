package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/jsykora/bioindex/internal/signature"
)

// Extractor turns a captured image into a signature. The index never
// interprets how the features were produced; hash, embedding and
// descriptors are opaque to it.
type Extractor interface {
	Extract(ctx context.Context, image []byte, kind signature.Kind) (*signature.Signature, error)
}

// HTTPExtractor calls an external feature-extraction service over
// multipart upload.
type HTTPExtractor struct {
	baseURL string
	client  *http.Client
}

// NewHTTPExtractor creates an extractor client for the given service URL.
func NewHTTPExtractor(baseURL string) *HTTPExtractor {
	return &HTTPExtractor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// extractResponse is the service's wire format: hash as a hex string,
// descriptors as keypoint objects with base64 vectors.
type extractResponse struct {
	Hash        string                 `json:"hash,omitempty"`
	Embedding   []float32              `json:"embedding,omitempty"`
	Descriptors []signature.Descriptor `json:"descriptors,omitempty"`
}

// Extract uploads the image and decodes the returned signature.
func (e *HTTPExtractor) Extract(ctx context.Context, image []byte, kind signature.Kind) (*signature.Signature, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "capture.jpg")
	if err != nil {
		return nil, fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("could not write image data: %w", err)
	}
	if err := writer.WriteField("kind", string(kind)); err != nil {
		return nil, fmt.Errorf("could not write kind field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("could not close writer: %w", err)
	}

	url := e.baseURL + "/extract"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extraction failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("could not decode extraction response: %w", err)
	}

	sig := &signature.Signature{
		Embedding:   decoded.Embedding,
		Descriptors: decoded.Descriptors,
	}
	if decoded.Hash != "" {
		hash, err := signature.ParseHash(decoded.Hash)
		if err != nil {
			return nil, fmt.Errorf("service returned malformed hash: %w", err)
		}
		sig.Hash = &hash
	}
	return sig, nil
}

var _ Extractor = (*HTTPExtractor)(nil)
