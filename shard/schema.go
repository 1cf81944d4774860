package shard

// Shard layout: a single-row meta table holding identity and the durable
// id/version counters, an append-only records table keyed (id, version),
// a heads table pointing each id at its current version, and per-peer
// sync watermarks.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS shard_meta (
		rowid_check     INTEGER PRIMARY KEY CHECK (rowid_check = 1),
		shard_id        TEXT    NOT NULL,
		dimension       INTEGER NOT NULL,
		id_counter      INTEGER NOT NULL DEFAULT 0,
		version_counter INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		id         INTEGER NOT NULL,
		version    INTEGER NOT NULL,
		vector     BLOB,
		norm       REAL    NOT NULL DEFAULT 0,
		metadata   BLOB,
		created_at INTEGER NOT NULL,
		deleted    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_version ON records(version)`,
	`CREATE INDEX IF NOT EXISTS idx_records_norm ON records(norm) WHERE deleted = 0`,
	`CREATE TABLE IF NOT EXISTS heads (
		id      INTEGER PRIMARY KEY,
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_state (
		peer_id       TEXT PRIMARY KEY,
		acked_version INTEGER NOT NULL DEFAULT 0
	)`,
}
