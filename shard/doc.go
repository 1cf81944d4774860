// Package shard implements the durable per-shard record store. Each shard is
// one SQLite database holding an append-only records table keyed
// (id, version), a heads table mapping each id to its current version, and
// per-peer sync watermarks. Deletes are tombstone records; superseded
// history is reclaimed by Compact once every peer has acknowledged it.
package shard
