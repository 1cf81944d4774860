package vecsync

import (
	"context"

	"github.com/viant/vecshard/shard"
	"github.com/viant/vecshard/vector"
)

// Replica is one side of a sync session. *shard.Store satisfies it
// directly; remote transports implement it by carrying batch frames.
type Replica interface {
	// ID returns the replica's stable identifier used to key watermarks.
	ID() string

	// Dimension returns the replica's fixed vector dimension.
	Dimension() int

	// ScanSince returns up to limit records with version > fromVersion in
	// ascending version order, tombstones included.
	ScanSince(ctx context.Context, fromVersion uint64, limit int) ([]vector.Record, error)

	// ApplyBatch applies records idempotently, resolving head collisions
	// with resolve. It returns newly applied and conflict counts.
	ApplyBatch(ctx context.Context, recs []vector.Record, resolve func(a, b *vector.Record) *vector.Record) (applied, conflicts int, err error)

	// SyncState returns the acked watermark for a peer, zero if unknown.
	SyncState(ctx context.Context, peerID string) (uint64, error)

	// AckSynced advances the acked watermark for a peer.
	AckSynced(ctx context.Context, peerID string, version uint64) error
}

var _ Replica = (*shard.Store)(nil)
