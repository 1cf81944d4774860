// Package search answers deterministic top-K cosine similarity queries over
// shard stores. Candidates are pruned through a per-shard in-memory norm
// index ordered by (norm, id); scoring uses SIMD cosine kernels with norms
// precomputed at write time, and the best k results are kept in a bounded
// min-heap.
package search
