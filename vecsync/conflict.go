package vecsync

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/viant/vecshard/vector"
)

// Wins picks the surviving record when two replicas wrote the same id
// independently. The comparison is commutative and deterministic so every
// replica settles on the same winner regardless of apply order: later
// created_at wins, then the larger id hash, then the larger version, then
// the lexically larger vector blob.
func Wins(a, b *vector.Record) *vector.Record {
	if a.CreatedAt != b.CreatedAt {
		if a.CreatedAt > b.CreatedAt {
			return a
		}
		return b
	}
	if ha, hb := idHash(a.ID), idHash(b.ID); ha != hb {
		if ha > hb {
			return a
		}
		return b
	}
	if a.Version != b.Version {
		if a.Version > b.Version {
			return a
		}
		return b
	}
	ab, _ := vector.EncodeEmbedding(a.Vector)
	bb, _ := vector.EncodeEmbedding(b.Vector)
	if bytes.Compare(ab, bb) >= 0 {
		return a
	}
	return b
}

func idHash(id uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	return xxhash.Sum64(buf[:])
}
