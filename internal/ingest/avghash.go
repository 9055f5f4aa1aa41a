package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/jsykora/bioindex/internal/signature"
)

// AverageHashExtractor computes the 8x8 average hash of an image
// locally. It produces hash-only signatures for CLI and offline use;
// embeddings and descriptors require the external extractor service.
type AverageHashExtractor struct{}

// Extract decodes the image and returns its average-hash signature.
func (AverageHashExtractor) Extract(_ context.Context, data []byte, _ signature.Kind) (*signature.Signature, error) {
	hash, err := AverageHash(data)
	if err != nil {
		return nil, err
	}
	return &signature.Signature{Hash: &hash}, nil
}

// AverageHash computes the 64-bit average hash: grayscale, resize to
// 8x8, then one bit per pixel comparing against the mean. Bit 63 is the
// top-left pixel, scanning row by row.
func AverageHash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}

	gray := toGrayscale(resizeImage(img, 8, 8))

	var sum float64
	for x := range 8 {
		for y := range 8 {
			sum += gray[x][y]
		}
	}
	mean := sum / 64

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > mean {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash, nil
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[x][y] = luma
		}
	}

	return gray
}

var _ Extractor = AverageHashExtractor{}
