package signature

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"identical scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := CosineSimilarity(tc.a, tc.b)
			if math.Abs(result-tc.expected) > 1e-9 {
				t.Errorf("CosineSimilarity(%v, %v) = %f; want %f",
					tc.a, tc.b, result, tc.expected)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	a := []float32{0.5, 0.5, 0.1}
	if d := CosineDistance(a, a); math.Abs(d) > 1e-9 {
		t.Errorf("CosineDistance of identical vectors = %f; want 0", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{-1, 0}); math.Abs(d-2) > 1e-9 {
		t.Errorf("CosineDistance of opposite vectors = %f; want 2", d)
	}
	if d := CosineDistance([]float32{1}, []float32{1, 2}); d != 2.0 {
		t.Errorf("CosineDistance with length mismatch = %f; want 2", d)
	}
}
