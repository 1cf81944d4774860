package vector

import (
	"fmt"
	"math"

	"github.com/viant/vec/search"
)

// Norm returns the L2 (Euclidean) norm of v.
func Norm(v []float32) float32 {
	return search.Float32s(v).Magnitude()
}

// CosineSimilarity computes the cosine similarity between two vectors. It
// returns an error if the vectors have different lengths or if either vector
// has zero magnitude.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: cosine similarity dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("vector: cosine similarity on empty vectors")
	}
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("vector: cosine similarity with zero-magnitude vector")
	}
	return CosineSimilarityWithNorms(a, b, na, nb), nil
}

// CosineSimilarityWithNorms computes cosine similarity using precomputed
// norms. Both norms must be non-zero; stores precompute them at write time so
// the scoring loop never recomputes magnitudes.
func CosineSimilarityWithNorms(a, b []float32, na, nb float32) float32 {
	sim := 1 - cosineDistance(a, b, na, nb)
	// Guard against accumulated rounding pushing the score out of range.
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// L2Distance computes the Euclidean (L2) distance between two vectors. It
// returns an error if the vectors have different lengths.
func L2Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: L2 distance dimension mismatch: %d vs %d", len(a), len(b))
	}
	return float64(search.Float32s(a).EuclideanDistance(b)), nil
}

// NormWindow returns the [lo, hi] norm bounds for a query norm and
// sensitivity s: [n*(1-s), n*(1+s)]. Candidates outside the window cannot
// reach high cosine similarity with the query under the pruning heuristic.
func NormWindow(queryNorm, sensitivity float32) (lo, hi float32) {
	lo = queryNorm * (1 - sensitivity)
	hi = queryNorm * (1 + sensitivity)
	if lo < 0 {
		lo = 0
	}
	if math.IsInf(float64(hi), 0) {
		hi = math.MaxFloat32
	}
	return lo, hi
}
