// Package vector defines the record model and numeric primitives shared by
// the shard, search, and vecsync packages. It includes:
//   - Record and SearchResult types
//   - Embedding encoding (little-endian IEEE 754 float32 BLOB)
//   - Norm and similarity functions, SIMD-accelerated via viant/vec
package vector
