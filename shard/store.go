package shard

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/viant/vecshard/engine"
	"github.com/viant/vecshard/vector"
)

// Stats summarizes the physical state of a shard.
type Stats struct {
	ShardID    string
	Dimension  int
	Live       int64
	Tombstones int64
	Versions   int64
	SizeBytes  int64
}

// Store is a durable single-shard record store backed by one SQLite
// database. Writes are serialized through an internal mutex and a single
// write transaction; reads go through the connection pool.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	id        string
	dimension int

	mu          sync.Mutex // writer gate
	idCounter   uint64
	lastVersion atomic.Uint64

	closed  atomic.Bool
	corrupt atomic.Bool
}

// Create creates a new shard database under dir with the given fixed vector
// dimension and returns the opened store. Pass dir ":memory:" for an
// in-memory shard.
func Create(ctx context.Context, dir string, dimension int, opts engine.Options) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("shard: dimension must be positive, got %d", dimension)
	}
	id := uuid.NewString()
	path := ":memory:"
	if dir != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("shard: create dir %s: %w", dir, err)
		}
		path = filepath.Join(dir, id+".db")
	}
	db, err := engine.Open(path, opts)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path, id: id, dimension: dimension, logger: slog.Default()}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing shard database and loads its identity and counters.
func Open(ctx context.Context, path string, opts engine.Options) (*Store, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("shard: open %s: %w", path, ErrShardNotFound)
		}
	}
	db, err := engine.Open(path, opts)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path, logger: slog.Default()}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("shard: create schema: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shard_meta(rowid_check, shard_id, dimension, id_counter, version_counter, created_at)
		 VALUES(1, ?, ?, 0, 0, ?)
		 ON CONFLICT(rowid_check) DO NOTHING`,
		s.id, s.dimension, time.Now().UnixMicro())
	if err != nil {
		return fmt.Errorf("shard: write meta: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("shard: ensure schema: %w", err)
		}
	}
	var idCounter, versionCounter uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT shard_id, dimension, id_counter, version_counter FROM shard_meta WHERE rowid_check = 1`).
		Scan(&s.id, &s.dimension, &idCounter, &versionCounter)
	if err == sql.ErrNoRows {
		return fmt.Errorf("shard: %s has no meta row: %w", s.path, ErrCorrupt)
	}
	if err != nil {
		return fmt.Errorf("shard: read meta: %w", err)
	}
	if s.dimension <= 0 {
		return fmt.Errorf("shard: meta dimension %d: %w", s.dimension, ErrCorrupt)
	}
	s.idCounter = idCounter
	s.lastVersion.Store(versionCounter)
	return nil
}

// Close closes the underlying database. Further operations return ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// ID returns the shard's stable identifier.
func (s *Store) ID() string { return s.id }

// Dimension returns the fixed vector dimension of the shard.
func (s *Store) Dimension() int { return s.dimension }

// Path returns the database file path, or ":memory:".
func (s *Store) Path() string { return s.path }

// LastVersion returns the highest version assigned or applied so far. It is
// safe for concurrent use and serves as a cheap change stamp.
func (s *Store) LastVersion() uint64 { return s.lastVersion.Load() }

func (s *Store) usable() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.corrupt.Load() {
		return ErrCorrupt
	}
	return nil
}

// markCorrupt logs the failure once and latches the store unusable.
func (s *Store) markCorrupt(what string, err error) error {
	if s.corrupt.CompareAndSwap(false, true) {
		s.logger.Error("shard corruption detected", "shard", s.id, "what", what, "err", err)
	}
	return fmt.Errorf("shard: %s: %v: %w", what, err, ErrCorrupt)
}

func (s *Store) validate(v []float32) ([]byte, float32, error) {
	if len(v) != s.dimension {
		return nil, 0, &DimensionError{Want: s.dimension, Got: len(v)}
	}
	if !vector.Finite(v) {
		return nil, 0, ErrNotFinite
	}
	blob, err := vector.EncodeEmbedding(v)
	if err != nil {
		return nil, 0, err
	}
	return blob, vector.Norm(v), nil
}

// beginWrite starts a write transaction. In-process writers are already
// serialized by s.mu; busy_timeout covers cross-process contention.
func (s *Store) beginWrite(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("shard: begin tx: %w", err)
	}
	return tx, nil
}

// Insert stores a new record and returns its assigned id and version. The
// version counter advances inside the same transaction as the row write.
func (s *Store) Insert(ctx context.Context, v []float32, metadata []byte) (uint64, uint64, error) {
	if err := s.usable(); err != nil {
		return 0, 0, err
	}
	blob, norm, err := s.validate(v)
	if err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginWrite(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	id := s.idCounter + 1
	version := s.lastVersion.Load() + 1
	now := time.Now().UnixMicro()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records(id, version, vector, norm, metadata, created_at, deleted)
		 VALUES(?, ?, ?, ?, ?, ?, 0)`,
		id, version, blob, norm, metadata, now); err != nil {
		return 0, 0, fmt.Errorf("shard: insert record: %w", err)
	}
	if err := setHead(ctx, tx, id, version); err != nil {
		return 0, 0, err
	}
	if err := saveCounters(ctx, tx, id, version); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("shard: commit insert: %w", err)
	}
	s.idCounter = id
	s.lastVersion.Store(version)
	return id, version, nil
}

// InsertBatch stores vectors in a single transaction, assigning contiguous
// ids and versions. metadatas may be nil or must match len(vectors).
func (s *Store) InsertBatch(ctx context.Context, vectors [][]float32, metadatas [][]byte) ([]uint64, uint64, error) {
	if err := s.usable(); err != nil {
		return nil, 0, err
	}
	if metadatas != nil && len(metadatas) != len(vectors) {
		return nil, 0, fmt.Errorf("shard: metadata count %d does not match vector count %d", len(metadatas), len(vectors))
	}
	if len(vectors) == 0 {
		return nil, s.lastVersion.Load(), nil
	}

	type row struct {
		blob []byte
		norm float32
	}
	rows := make([]row, len(vectors))
	for i, v := range vectors {
		blob, norm, err := s.validate(v)
		if err != nil {
			return nil, 0, fmt.Errorf("shard: batch item %d: %w", i, err)
		}
		rows[i] = row{blob: blob, norm: norm}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginWrite(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records(id, version, vector, norm, metadata, created_at, deleted)
		 VALUES(?, ?, ?, ?, ?, ?, 0)`)
	if err != nil {
		return nil, 0, fmt.Errorf("shard: prepare batch insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMicro()
	ids := make([]uint64, len(rows))
	id := s.idCounter
	version := s.lastVersion.Load()
	for i, r := range rows {
		id++
		version++
		var meta []byte
		if metadatas != nil {
			meta = metadatas[i]
		}
		if _, err := stmt.ExecContext(ctx, id, version, r.blob, r.norm, meta, now); err != nil {
			return nil, 0, fmt.Errorf("shard: batch insert record: %w", err)
		}
		if err := setHead(ctx, tx, id, version); err != nil {
			return nil, 0, err
		}
		ids[i] = id
	}
	if err := saveCounters(ctx, tx, id, version); err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("shard: commit batch insert: %w", err)
	}
	s.idCounter = id
	s.lastVersion.Store(version)
	return ids, version, nil
}

// Delete writes a tombstone for id and returns the tombstone's version.
// Deleting an absent or already deleted id returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id uint64) (uint64, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginWrite(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var deleted int
	err = tx.QueryRowContext(ctx,
		`SELECT r.deleted FROM heads h JOIN records r ON r.id = h.id AND r.version = h.version WHERE h.id = ?`,
		id).Scan(&deleted)
	if err == sql.ErrNoRows || (err == nil && deleted != 0) {
		return 0, fmt.Errorf("shard: delete id %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("shard: lookup head: %w", err)
	}

	version := s.lastVersion.Load() + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records(id, version, vector, norm, metadata, created_at, deleted)
		 VALUES(?, ?, NULL, 0, NULL, ?, 1)`,
		id, version, time.Now().UnixMicro()); err != nil {
		return 0, fmt.Errorf("shard: insert tombstone: %w", err)
	}
	if err := setHead(ctx, tx, id, version); err != nil {
		return 0, err
	}
	if err := saveCounters(ctx, tx, s.idCounter, version); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("shard: commit delete: %w", err)
	}
	s.lastVersion.Store(version)
	return version, nil
}

// Get returns the current live record for id, or ErrNotFound if the id is
// absent or tombstoned.
func (s *Store) Get(ctx context.Context, id uint64) (*vector.Record, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	rec, err := s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT r.id, r.version, r.vector, r.norm, r.metadata, r.created_at, r.deleted
		 FROM heads h JOIN records r ON r.id = h.id AND r.version = h.version
		 WHERE h.id = ?`, id))
	if err != nil {
		return nil, err
	}
	if rec.Tombstone {
		return nil, fmt.Errorf("shard: id %d: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (s *Store) scanOne(row *sql.Row) (*vector.Record, error) {
	var rec vector.Record
	var blob, meta []byte
	var deleted int
	err := row.Scan(&rec.ID, &rec.Version, &blob, &rec.Norm, &meta, &rec.CreatedAt, &deleted)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("shard: scan record: %w", err)
	}
	rec.Tombstone = deleted != 0
	rec.Metadata = meta
	if !rec.Tombstone {
		rec.Vector, err = vector.DecodeEmbeddingDim(blob, s.dimension)
		if err != nil {
			return nil, s.markCorrupt(fmt.Sprintf("record %d@%d blob", rec.ID, rec.Version), err)
		}
	}
	return &rec, nil
}

// ScanSince returns up to limit records with version > fromVersion in
// ascending version order, tombstones included. limit <= 0 means no limit.
func (s *Store) ScanSince(ctx context.Context, fromVersion uint64, limit int) ([]vector.Record, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	q := `SELECT id, version, vector, norm, metadata, created_at, deleted
	      FROM records WHERE version > ? ORDER BY version ASC`
	args := []any{fromVersion}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("shard: scan since %d: %w", fromVersion, err)
	}
	defer rows.Close()

	var out []vector.Record
	for rows.Next() {
		var rec vector.Record
		var blob, meta []byte
		var deleted int
		if err := rows.Scan(&rec.ID, &rec.Version, &blob, &rec.Norm, &meta, &rec.CreatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("shard: scan record: %w", err)
		}
		rec.Tombstone = deleted != 0
		rec.Metadata = meta
		if !rec.Tombstone {
			rec.Vector, err = vector.DecodeEmbeddingDim(blob, s.dimension)
			if err != nil {
				return nil, s.markCorrupt(fmt.Sprintf("record %d@%d blob", rec.ID, rec.Version), err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("shard: scan since %d: %w", fromVersion, err)
	}
	return out, nil
}

// ForEachLive invokes fn for every live head record whose norm falls within
// [lo, hi]. Pass lo=0, hi=math.MaxFloat32 to visit every live record.
func (s *Store) ForEachLive(ctx context.Context, lo, hi float32, fn func(rec *vector.Record) error) error {
	if err := s.usable(); err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.version, r.vector, r.norm, r.metadata, r.created_at
		 FROM heads h JOIN records r ON r.id = h.id AND r.version = h.version
		 WHERE r.deleted = 0 AND r.norm BETWEEN ? AND ?`,
		lo, hi)
	if err != nil {
		return fmt.Errorf("shard: scan live: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec vector.Record
		var blob, meta []byte
		if err := rows.Scan(&rec.ID, &rec.Version, &blob, &rec.Norm, &meta, &rec.CreatedAt); err != nil {
			return fmt.Errorf("shard: scan record: %w", err)
		}
		rec.Metadata = meta
		rec.Vector, err = vector.DecodeEmbeddingDim(blob, s.dimension)
		if err != nil {
			return s.markCorrupt(fmt.Sprintf("record %d@%d blob", rec.ID, rec.Version), err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of live records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM heads h JOIN records r ON r.id = h.id AND r.version = h.version WHERE r.deleted = 0`).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("shard: count: %w", err)
	}
	return n, nil
}

// ApplyBatch applies replicated records idempotently in one transaction.
// A record already present under the same (id, version) with identical
// content is a replay and is skipped; the same key with different content
// is a two-sided collision, settled by resolve and counted as a conflict.
// When the incoming side wins such a collision it is rewritten under a
// fresh local version so the resolution propagates onward. It returns the
// number of newly applied records and detected conflicts.
func (s *Store) ApplyBatch(ctx context.Context, recs []vector.Record, resolve func(a, b *vector.Record) *vector.Record) (applied, conflicts int, err error) {
	if err := s.usable(); err != nil {
		return 0, 0, err
	}
	for i := range recs {
		if !recs[i].Tombstone && len(recs[i].Vector) != s.dimension {
			return 0, 0, &DimensionError{Want: s.dimension, Got: len(recs[i].Vector)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginWrite(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	maxVersion := s.lastVersion.Load()
	maxID := s.idCounter
	for i := range recs {
		rec := &recs[i]
		var blob []byte
		if !rec.Tombstone {
			blob, err = vector.EncodeEmbedding(rec.Vector)
			if err != nil {
				return 0, 0, err
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO records(id, version, vector, norm, metadata, created_at, deleted)
			 VALUES(?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Version, blob, rec.Norm, rec.Metadata, rec.CreatedAt, boolInt(rec.Tombstone))
		if err != nil {
			return 0, 0, fmt.Errorf("shard: apply record %d@%d: %w", rec.ID, rec.Version, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("shard: apply record %d@%d: %w", rec.ID, rec.Version, err)
		}
		if n == 0 {
			// The key exists. Fresh replicas assign colliding (id, version)
			// pairs, so only identical content is a true replay; differing
			// content means both sides wrote independently.
			stored, err := s.rowInTx(ctx, tx, rec.ID, rec.Version)
			if err != nil {
				return 0, 0, err
			}
			if stored == nil || sameContent(stored, rec) {
				continue
			}
			head, err := s.headInTx(ctx, tx, rec.ID)
			if err != nil {
				return 0, 0, err
			}
			champion := head
			if champion == nil {
				champion = stored
			}
			if sameContent(champion, rec) {
				// A previous session already settled this collision here.
				continue
			}
			conflicts++
			winner := champion
			if resolve != nil {
				winner = resolve(champion, rec)
			}
			if winner != rec {
				continue
			}
			// The incoming record wins but its key is taken by the local
			// write. Materialize it under a fresh version so the change
			// also propagates to peers through version scans.
			maxVersion++
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO records(id, version, vector, norm, metadata, created_at, deleted)
				 VALUES(?, ?, ?, ?, ?, ?, ?)`,
				rec.ID, maxVersion, blob, rec.Norm, rec.Metadata, rec.CreatedAt, boolInt(rec.Tombstone)); err != nil {
				return 0, 0, fmt.Errorf("shard: apply record %d@%d: %w", rec.ID, maxVersion, err)
			}
			if err := setHead(ctx, tx, rec.ID, maxVersion); err != nil {
				return 0, 0, err
			}
			applied++
			if rec.ID > maxID {
				maxID = rec.ID
			}
			continue
		}
		applied++

		head, err := s.headInTx(ctx, tx, rec.ID)
		if err != nil {
			return 0, 0, err
		}
		winner := rec
		if head != nil && head.Version != rec.Version {
			// A newer version for a known id is one-sided propagation,
			// not a two-sided collision; the resolver only settles which
			// version the head points at.
			if resolve != nil {
				winner = resolve(head, rec)
			} else if head.Version > rec.Version {
				winner = head
			}
		}
		if err := setHead(ctx, tx, rec.ID, winner.Version); err != nil {
			return 0, 0, err
		}
		if rec.Version > maxVersion {
			maxVersion = rec.Version
		}
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	if err := saveCounters(ctx, tx, maxID, maxVersion); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("shard: commit apply: %w", err)
	}
	s.idCounter = maxID
	s.lastVersion.Store(maxVersion)
	return applied, conflicts, nil
}

// rowInTx loads the record stored under an exact (id, version) key, or nil.
func (s *Store) rowInTx(ctx context.Context, tx *sql.Tx, id, version uint64) (*vector.Record, error) {
	var rec vector.Record
	var blob, meta []byte
	var deleted int
	err := tx.QueryRowContext(ctx,
		`SELECT id, version, vector, norm, metadata, created_at, deleted
		 FROM records WHERE id = ? AND version = ?`, id, version).
		Scan(&rec.ID, &rec.Version, &blob, &rec.Norm, &meta, &rec.CreatedAt, &deleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shard: lookup record %d@%d: %w", id, version, err)
	}
	rec.Tombstone = deleted != 0
	rec.Metadata = meta
	if !rec.Tombstone {
		rec.Vector, err = vector.DecodeEmbeddingDim(blob, s.dimension)
		if err != nil {
			return nil, s.markCorrupt(fmt.Sprintf("record %d@%d blob", id, version), err)
		}
	}
	return &rec, nil
}

// sameContent reports whether two records carry the same payload, ignoring
// their version keys.
func sameContent(a, b *vector.Record) bool {
	if a.Tombstone != b.Tombstone || a.CreatedAt != b.CreatedAt || a.Norm != b.Norm {
		return false
	}
	if !bytes.Equal(a.Metadata, b.Metadata) {
		return false
	}
	if len(a.Vector) != len(b.Vector) {
		return false
	}
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			return false
		}
	}
	return true
}

func (s *Store) headInTx(ctx context.Context, tx *sql.Tx, id uint64) (*vector.Record, error) {
	var rec vector.Record
	var blob, meta []byte
	var deleted int
	err := tx.QueryRowContext(ctx,
		`SELECT r.id, r.version, r.vector, r.norm, r.metadata, r.created_at, r.deleted
		 FROM heads h JOIN records r ON r.id = h.id AND r.version = h.version
		 WHERE h.id = ?`, id).
		Scan(&rec.ID, &rec.Version, &blob, &rec.Norm, &meta, &rec.CreatedAt, &deleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shard: lookup head %d: %w", id, err)
	}
	rec.Tombstone = deleted != 0
	rec.Metadata = meta
	if !rec.Tombstone {
		rec.Vector, err = vector.DecodeEmbeddingDim(blob, s.dimension)
		if err != nil {
			return nil, s.markCorrupt(fmt.Sprintf("record %d@%d blob", rec.ID, rec.Version), err)
		}
	}
	return &rec, nil
}

// SyncState returns the acked watermark for peerID, zero for an unknown peer.
func (s *Store) SyncState(ctx context.Context, peerID string) (uint64, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	var v uint64
	err := s.db.QueryRowContext(ctx, `SELECT acked_version FROM sync_state WHERE peer_id = ?`, peerID).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("shard: read sync state for %s: %w", peerID, err)
	}
	return v, nil
}

// AckSynced advances the acked watermark for peerID. Watermarks never move
// backwards; an older ack is a no-op.
func (s *Store) AckSynced(ctx context.Context, peerID string, version uint64) error {
	if err := s.usable(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state(peer_id, acked_version) VALUES(?, ?)
		 ON CONFLICT(peer_id) DO UPDATE SET acked_version = max(acked_version, excluded.acked_version)`,
		peerID, version)
	if err != nil {
		return fmt.Errorf("shard: ack sync for %s: %w", peerID, err)
	}
	return nil
}

// MinPeerWatermark returns the lowest acked watermark across all known
// peers. With no peers registered it returns LastVersion, meaning all
// history is compactable.
func (s *Store) MinPeerWatermark(ctx context.Context) (uint64, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT min(acked_version) FROM sync_state`).Scan(&v); err != nil {
		return 0, fmt.Errorf("shard: min watermark: %w", err)
	}
	if !v.Valid {
		return s.lastVersion.Load(), nil
	}
	return uint64(v.Int64), nil
}

// Compact physically removes superseded versions and tombstones at or below
// the minimum peer watermark, then refreshes planner statistics. History
// above the watermark is preserved so peers can still catch up.
func (s *Store) Compact(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}
	floor, err := s.MinPeerWatermark(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginWrite(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Superseded versions: rows below the floor that are no longer any
	// id's head.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE version <= ?
		 AND NOT EXISTS (SELECT 1 FROM heads h WHERE h.id = records.id AND h.version = records.version)`,
		floor); err != nil {
		return fmt.Errorf("shard: compact superseded: %w", err)
	}
	// Tombstoned heads below the floor: drop both the tombstone and the
	// head pointer, the id is fully forgotten.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM heads WHERE version <= ?
		 AND EXISTS (SELECT 1 FROM records r WHERE r.id = heads.id AND r.version = heads.version AND r.deleted = 1)`,
		floor); err != nil {
		return fmt.Errorf("shard: compact tombstone heads: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE deleted = 1 AND version <= ?
		 AND NOT EXISTS (SELECT 1 FROM heads h WHERE h.id = records.id)`,
		floor); err != nil {
		return fmt.Errorf("shard: compact tombstones: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("shard: commit compact: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("shard: analyze: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("shard: optimize: %w", err)
	}
	return nil
}

// Stats returns physical shard statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	st := &Stats{ShardID: s.id, Dimension: s.dimension}
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT count(*) FROM heads h JOIN records r ON r.id = h.id AND r.version = h.version WHERE r.deleted = 0),
			(SELECT count(*) FROM records WHERE deleted = 1),
			(SELECT count(*) FROM records)`).
		Scan(&st.Live, &st.Tombstones, &st.Versions)
	if err != nil {
		return nil, fmt.Errorf("shard: stats: %w", err)
	}
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("shard: page count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("shard: page size: %w", err)
	}
	st.SizeBytes = pageCount * pageSize
	return st, nil
}

// Flush forces WAL content into the main database file.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("shard: checkpoint: %w", err)
	}
	return nil
}

func setHead(ctx context.Context, tx *sql.Tx, id, version uint64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO heads(id, version) VALUES(?, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version`,
		id, version)
	if err != nil {
		return fmt.Errorf("shard: set head %d: %w", id, err)
	}
	return nil
}

func saveCounters(ctx context.Context, tx *sql.Tx, idCounter, versionCounter uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE shard_meta SET id_counter = ?, version_counter = ? WHERE rowid_check = 1`,
		idCounter, versionCounter)
	if err != nil {
		return fmt.Errorf("shard: save counters: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
