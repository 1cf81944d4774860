// Package vecshard is an embedded vector similarity store. Records live in
// per-shard SQLite databases with append-only versioning, similarity queries
// run through norm-pruned top-K search, and shards replicate between peers
// with watermark-based delta sync. The Engine type ties the shard manager,
// search engine and replicator together behind one operation surface.
package vecshard
