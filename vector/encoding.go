package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeEmbedding encodes a slice of float32 values into a BLOB representation
// suitable for storage in SQLite. The encoding is a simple little-endian
// sequence of IEEE 754 float32 values without a length prefix; the length is
// derived from the BLOB size on decode. This layout is a cross-process
// contract: it is consumed byte-for-byte across sync boundaries.
func EncodeEmbedding(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		bits := math.Float32bits(v)
		binary.LittleEndian.PutUint32(b[i*4:], bits)
	}
	return b, nil
}

// DecodeEmbedding decodes a BLOB produced by EncodeEmbedding back into a
// slice of float32 values.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector: invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	n := len(b) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

// DecodeEmbeddingDim decodes a BLOB and verifies it holds exactly dim values.
// A mismatch indicates a corrupt stored blob rather than a caller error.
func DecodeEmbeddingDim(b []byte, dim int) ([]float32, error) {
	vec, err := DecodeEmbedding(b)
	if err != nil {
		return nil, err
	}
	if len(vec) != dim {
		return nil, fmt.Errorf("vector: embedding blob holds %d values, want %d", len(vec), dim)
	}
	return vec, nil
}

// Finite reports whether every component of vec is a finite number. NaN or
// infinite components would poison norms and similarity scores, so stores
// reject them at write time.
func Finite(vec []float32) bool {
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
