package vecsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/viant/vecshard/metrics"
)

const defaultBatchSize = 512

// Options configures a Replicator.
type Options struct {
	// BatchSize bounds records per shipped batch. Zero means 512.
	BatchSize int

	// Compress enables zstd compression of batch frames.
	Compress bool

	// Logger receives session results. Nil means slog.Default().
	Logger *slog.Logger
}

// Replicator runs delta sync sessions between replicas. Batches round-trip
// through the wire codec even between local stores, so a local session
// exercises exactly what a remote transport would carry.
type Replicator struct {
	batchSize int
	compress  bool
	logger    *slog.Logger
}

// NewReplicator returns a replicator with the given options.
func NewReplicator(opts Options) *Replicator {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Replicator{batchSize: batch, compress: opts.Compress, logger: logger}
}

// Push ships src's records above dst's acked watermark to dst and advances
// the watermark once every batch is acknowledged. A mid-session failure
// leaves the watermark untouched; the retry re-ships from the last ack and
// the receiver deduplicates on (id, version).
func (r *Replicator) Push(ctx context.Context, src, dst Replica) (Stats, error) {
	stats, err := r.push(ctx, src, dst)
	r.record("push", stats, err)
	return stats, err
}

// Pull fetches the peer's records above the local acked watermark.
func (r *Replicator) Pull(ctx context.Context, local, peer Replica) (Stats, error) {
	stats, err := r.push(ctx, peer, local)
	stats.Received, stats.Sent = stats.Sent, stats.Received
	r.record("pull", stats, err)
	return stats, err
}

// Sync runs a session in the given direction between the local replica and
// a peer. Bidirectional pushes first, then pulls.
func (r *Replicator) Sync(ctx context.Context, local, peer Replica, direction Direction) (Stats, error) {
	switch direction {
	case Push:
		return r.Push(ctx, local, peer)
	case Pull:
		return r.Pull(ctx, local, peer)
	case Bidirectional:
		out, err := r.Push(ctx, local, peer)
		if err != nil {
			return out, err
		}
		in, err := r.Pull(ctx, local, peer)
		return out.add(in), err
	}
	return Stats{}, fmt.Errorf("vecsync: unknown direction %v", direction)
}

func (r *Replicator) push(ctx context.Context, src, dst Replica) (Stats, error) {
	var stats Stats
	if sd, dd := src.Dimension(), dst.Dimension(); sd != dd {
		return stats, fmt.Errorf("vecsync: dimension mismatch between %s (%d) and %s (%d)", src.ID(), sd, dst.ID(), dd)
	}

	start, err := src.SyncState(ctx, dst.ID())
	if err != nil {
		return stats, &SyncError{Op: "push", LastAcked: 0, Err: err}
	}
	cursor := start
	for {
		recs, err := src.ScanSince(ctx, cursor, r.batchSize)
		if err != nil {
			return stats, &SyncError{Op: "push", LastAcked: start, Err: err}
		}
		if len(recs) == 0 {
			break
		}
		frame, err := EncodeBatch(recs, r.compress)
		if err != nil {
			return stats, &SyncError{Op: "push", LastAcked: start, Err: err}
		}
		wire, err := DecodeBatch(frame)
		if err != nil {
			return stats, &SyncError{Op: "push", LastAcked: start, Err: err}
		}
		applied, conflicts, err := dst.ApplyBatch(ctx, wire, Wins)
		if err != nil {
			return stats, &SyncError{Op: "push", LastAcked: start, Err: err}
		}
		cursor = recs[len(recs)-1].Version
		stats.Sent += len(recs)
		stats.Applied += applied
		stats.Conflicts += conflicts
		stats.Batches++
	}
	// The watermark moves only after the whole session is applied.
	if cursor > start {
		if err := src.AckSynced(ctx, dst.ID(), cursor); err != nil {
			return stats, &SyncError{Op: "push", LastAcked: start, Err: err}
		}
	}
	return stats, nil
}

func (r *Replicator) record(op string, stats Stats, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.SyncSessionsTotal.WithLabelValues(op, outcome).Inc()
	metrics.SyncRecordsTotal.Add(float64(stats.Sent + stats.Received))
	metrics.SyncConflictsTotal.Add(float64(stats.Conflicts))
	if err != nil {
		r.logger.Error("sync session failed", "op", op, "err", err)
		return
	}
	r.logger.Debug("sync session complete",
		"op", op, "sent", stats.Sent, "received", stats.Received,
		"applied", stats.Applied, "conflicts", stats.Conflicts, "batches", stats.Batches)
}
