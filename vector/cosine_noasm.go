//go:build !arm64

package vector

import "github.com/viant/vec/search"

// The pure-Go build of the kernel library exports the magnitude-aware
// cosine under a different name than the NEON build.
func cosineDistance(a, b []float32, na, nb float32) float32 {
	return search.Float32s(a).CosineDistanceWithMagnitudesNeon(b, na, nb)
}
