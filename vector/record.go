package vector

// Record is a single versioned vector record within a shard. Records are
// append-only from the sync protocol's perspective: an update writes a new
// version, a delete writes a tombstone version, and older versions survive
// until compaction.
type Record struct {
	// ID is the shard-local record identifier, assigned monotonically.
	ID uint64

	// Version is the shard-wide write version: strictly increasing, unique,
	// never reused.
	Version uint64

	// Vector holds the embedding. It is nil for tombstones and has exactly
	// the shard dimension otherwise.
	Vector []float32

	// Norm is the L2 norm of Vector, computed at write time and stored
	// alongside the blob.
	Norm float32

	// Metadata is an opaque caller-defined payload.
	Metadata []byte

	// CreatedAt is the write timestamp in microseconds since the Unix epoch.
	// It participates in sync conflict resolution.
	CreatedAt int64

	// Tombstone marks a deletion recorded as a versioned record so it can
	// propagate through sync.
	Tombstone bool
}

// SearchResult is a single similarity search match.
type SearchResult struct {
	ID uint64

	// Similarity is the cosine similarity to the query, in [-1, 1].
	Similarity float32

	// Metadata is a copy of the record's metadata, never a reference into
	// store-owned memory.
	Metadata []byte
}
