package vector

import "testing"

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	c := []float32{1, 0}

	// Orthogonal vectors -> similarity 0
	if sim, err := CosineSimilarity(a, b); err != nil || sim != 0 {
		t.Fatalf("CosineSimilarity(a,b) = %v, %v; want 0, nil", sim, err)
	}

	// Identical vectors -> similarity 1
	if sim, err := CosineSimilarity(a, c); err != nil || sim != 1 {
		t.Fatalf("CosineSimilarity(a,c) = %v, %v; want 1, nil", sim, err)
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); err == nil {
		t.Fatalf("expected error for zero-magnitude vector")
	}
}

func TestCosineSimilarityWithNorms(t *testing.T) {
	a := []float32{3, 4}
	b := []float32{3, 4}
	sim := CosineSimilarityWithNorms(a, b, 5, 5)
	if sim < 0.999 || sim > 1 {
		t.Fatalf("self similarity = %v, want ~1", sim)
	}
}

func TestL2Distance(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}

	d, err := L2Distance(a, b)
	if err != nil {
		t.Fatalf("L2Distance failed: %v", err)
	}
	if d != 5 {
		t.Fatalf("L2Distance(0,0)-(3,4) = %v, want 5", d)
	}
}

func TestNorm(t *testing.T) {
	if n := Norm([]float32{3, 4}); n != 5 {
		t.Fatalf("Norm(3,4) = %v, want 5", n)
	}
}

func TestNormWindow(t *testing.T) {
	lo, hi := NormWindow(10, 0.3)
	if lo != 7 || hi != 13 {
		t.Fatalf("NormWindow(10, 0.3) = [%v, %v], want [7, 13]", lo, hi)
	}

	// Sensitivity above 1 clamps the lower bound at zero.
	lo, _ = NormWindow(10, 1.5)
	if lo != 0 {
		t.Fatalf("lower bound = %v, want 0", lo)
	}
}
