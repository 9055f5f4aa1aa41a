package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/jsykora/bioindex/internal/signature"
)

// encodePNG renders a test image where each pixel's gray level comes
// from the fill function.
func encodePNG(t *testing.T, size int, fill func(x, y int) uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: fill(x, y)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestAverageHashHalfBright(t *testing.T) {
	// Left half bright, right half dark: exactly the left 4 bits of
	// every row exceed the mean.
	data := encodePNG(t, 64, func(x, y int) uint8 {
		if x < 32 {
			return 250
		}
		return 10
	})

	hash, err := AverageHash(data)
	if err != nil {
		t.Fatalf("AverageHash failed: %v", err)
	}
	if hash != 0xF0F0F0F0F0F0F0F0 {
		t.Errorf("hash = %016x; want f0f0f0f0f0f0f0f0", hash)
	}
}

func TestAverageHashUniformImage(t *testing.T) {
	// A flat image has no pixel above the mean, so every bit is zero.
	data := encodePNG(t, 32, func(x, y int) uint8 { return 128 })

	hash, err := AverageHash(data)
	if err != nil {
		t.Fatalf("AverageHash failed: %v", err)
	}
	if hash != 0 {
		t.Errorf("hash = %016x; want 0", hash)
	}
}

func TestAverageHashStableUnderResize(t *testing.T) {
	fill := func(x, y int) uint8 {
		if (x/16+y/16)%2 == 0 {
			return 240
		}
		return 20
	}
	small := encodePNG(t, 64, fill)
	large := encodePNG(t, 128, func(x, y int) uint8 { return fill(x/2, y/2) })

	h1, err := AverageHash(small)
	if err != nil {
		t.Fatalf("AverageHash(small) failed: %v", err)
	}
	h2, err := AverageHash(large)
	if err != nil {
		t.Fatalf("AverageHash(large) failed: %v", err)
	}
	if d := signature.HammingDistance(h1, h2); d > 4 {
		t.Errorf("scaled copies differ by %d bits; want <= 4", d)
	}
}

func TestAverageHashRejectsGarbage(t *testing.T) {
	if _, err := AverageHash([]byte("not an image")); err == nil {
		t.Error("expected error for undecodable input")
	}
}

func TestAverageHashExtractorSignatureShape(t *testing.T) {
	data := encodePNG(t, 16, func(x, y int) uint8 { return uint8(x * 16) })

	sig, err := AverageHashExtractor{}.Extract(context.Background(), data, signature.KindFace)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if sig.Hash == nil {
		t.Fatal("expected a hash-only signature")
	}
	if len(sig.Embedding) != 0 || len(sig.Descriptors) != 0 {
		t.Error("local extractor must not fabricate embeddings or descriptors")
	}
}
