// Package vecsync replicates shard deltas between replicas. A session scans
// the source's records above the destination's acked watermark, ships them
// in batches, applies them idempotently keyed (id, version), and advances
// the watermark only after the destination acknowledges. Divergent writes
// for the same id are settled by a commutative comparator so replicas
// converge regardless of sync order.
package vecsync
