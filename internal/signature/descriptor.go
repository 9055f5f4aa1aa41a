package signature

// DescriptorDistance computes the Hamming distance between two binary
// descriptor vectors. Vectors of unequal length are treated as
// maximally distant.
func DescriptorDistance(a, b []byte) int {
	if len(a) != len(b) || len(a) == 0 {
		return 8 * max(len(a), len(b))
	}

	distance := 0
	for i := range a {
		xor := a[i] ^ b[i]
		for xor != 0 {
			distance++
			xor &= xor - 1
		}
	}
	return distance
}

// MatchDescriptors counts mutually consistent keypoint correspondences
// between a query descriptor set and a stored one. A correspondence
// counts only when the stored descriptor is the query descriptor's
// nearest neighbor AND vice versa (cross check), and their distance is
// below cutoff. This mirrors a brute-force matcher with cross checking.
func MatchDescriptors(query, stored []Descriptor, cutoff int) int {
	if len(query) == 0 || len(stored) == 0 {
		return 0
	}

	// Nearest stored descriptor for each query descriptor.
	queryNearest := make([]int, len(query))
	queryDist := make([]int, len(query))
	for i := range query {
		queryNearest[i], queryDist[i] = nearestDescriptor(query[i].Vector, stored)
	}

	// Nearest query descriptor for each stored descriptor.
	storedNearest := make([]int, len(stored))
	for j := range stored {
		storedNearest[j], _ = nearestDescriptor(stored[j].Vector, query)
	}

	matches := 0
	for i := range query {
		j := queryNearest[i]
		if j >= 0 && storedNearest[j] == i && queryDist[i] < cutoff {
			matches++
		}
	}
	return matches
}

// nearestDescriptor returns the index of the closest descriptor in the
// candidate set and its distance, or (-1, 0) for an empty set.
func nearestDescriptor(vec []byte, candidates []Descriptor) (int, int) {
	best := -1
	bestDist := 0
	for i := range candidates {
		d := DescriptorDistance(vec, candidates[i].Vector)
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}
