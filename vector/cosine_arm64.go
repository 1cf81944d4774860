//go:build arm64

package vector

import "github.com/viant/vec/search"

func cosineDistance(a, b []float32, na, nb float32) float32 {
	return search.Float32s(a).CosineDistanceWithMagnitude(b, na, nb)
}
