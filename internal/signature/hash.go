package signature

import (
	"fmt"
	"strconv"
	"strings"
)

// BucketCount is the number of coarse hash partitions.
const BucketCount = 256

// MaxHashDistance is the largest possible Hamming distance between two
// 64-bit hashes.
const MaxHashDistance = 64

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // Clear lowest set bit
	}
	return distance
}

// DeriveBucket maps a hash to its coarse partition: the 8 most
// significant bits, an integer in [0, 255]. This is a geometric
// partition of hash space, not a hash table, so hashes that are close
// in Hamming distance can still land in adjacent buckets.
func DeriveBucket(hash uint64) int {
	return int(hash >> 56)
}

// FormatHash renders a hash as a 16-character lowercase hex string.
func FormatHash(hash uint64) string {
	return fmt.Sprintf("%016x", hash)
}

// ParseHash accepts either a 16-character hex string or a 64-character
// bit string (the wire format used by older extractors).
func ParseHash(s string) (uint64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "0x"))
	switch len(s) {
	case 16:
		h, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid hex hash %q: %w", s, err)
		}
		return h, nil
	case 64:
		h, err := strconv.ParseUint(s, 2, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid bit-string hash %q: %w", s, err)
		}
		return h, nil
	default:
		return 0, fmt.Errorf("hash must be 16 hex or 64 binary characters, got %d", len(s))
	}
}

// Similar returns true if two hashes are within the given threshold.
func Similar(hash1, hash2 uint64, threshold int) bool {
	return HammingDistance(hash1, hash2) <= threshold
}
