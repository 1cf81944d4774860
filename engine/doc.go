// Package engine opens shard SQLite databases using the modernc.org/sqlite
// driver and applies the per-durability connection tuning (journal mode,
// synchronous level, cache and mmap sizing) that every connection in the pool
// must share.
package engine
