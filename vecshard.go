package vecshard

import (
	"context"
	"log/slog"

	"github.com/viant/vecshard/config"
	"github.com/viant/vecshard/manager"
	"github.com/viant/vecshard/search"
	"github.com/viant/vecshard/shard"
	"github.com/viant/vecshard/vecsync"
	"github.com/viant/vecshard/vector"
)

// Error sentinels surfaced by Engine operations, re-exported so callers do
// not need to import the internal packages to match them.
var (
	ErrNotFound      = shard.ErrNotFound
	ErrShardNotFound = shard.ErrShardNotFound
	ErrCorrupt       = shard.ErrCorrupt
	ErrNotFinite     = shard.ErrNotFinite
	ErrInvalidK         = search.ErrInvalidK
	ErrInvalidThreshold = search.ErrInvalidThreshold
	ErrPoolExhausted    = manager.ErrPoolExhausted
)

// Engine is the operation surface over a directory of shards.
type Engine struct {
	cfg      *config.Config
	shards   *manager.Manager
	searcher *search.Engine
	repl     *vecsync.Replicator
	logger   *slog.Logger
}

// New opens an engine rooted at cfg.DataDir. A nil cfg means defaults.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := slog.Default()
	searcher := search.New()
	shards, err := manager.New(manager.Options{
		Dir:        cfg.DataDir,
		Capacity:   cfg.HotSetCapacity,
		QueueDepth: cfg.QueueDepth,
		Engine:     cfg.EngineOptions(),
		OnEvict:    searcher.Forget,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	repl := vecsync.NewReplicator(vecsync.Options{
		BatchSize: cfg.SyncBatchSize,
		Compress:  cfg.SyncCompress,
		Logger:    logger,
	})
	return &Engine{cfg: cfg, shards: shards, searcher: searcher, repl: repl, logger: logger}, nil
}

// CreateShard creates an empty shard with the given vector dimension and
// returns its id.
func (e *Engine) CreateShard(ctx context.Context, dimension int) (string, error) {
	return e.shards.CreateShard(ctx, dimension)
}

// DropShard removes a shard and its database file.
func (e *Engine) DropShard(ctx context.Context, shardID string) error {
	return e.shards.DropShard(ctx, shardID)
}

// Insert stores a vector with optional metadata in a shard and returns the
// assigned record id and version.
func (e *Engine) Insert(ctx context.Context, shardID string, vec []float32, metadata []byte) (uint64, uint64, error) {
	h, err := e.shards.Get(ctx, shardID)
	if err != nil {
		return 0, 0, err
	}
	defer h.Release()
	return h.Store().Insert(ctx, vec, metadata)
}

// InsertBatch stores vectors in one transaction with contiguous ids.
func (e *Engine) InsertBatch(ctx context.Context, shardID string, vectors [][]float32, metadatas [][]byte) ([]uint64, uint64, error) {
	h, err := e.shards.Get(ctx, shardID)
	if err != nil {
		return nil, 0, err
	}
	defer h.Release()
	return h.Store().InsertBatch(ctx, vectors, metadatas)
}

// Get returns the live record for id, or ErrNotFound.
func (e *Engine) Get(ctx context.Context, shardID string, id uint64) (*vector.Record, error) {
	h, err := e.shards.Get(ctx, shardID)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return h.Store().Get(ctx, id)
}

// Delete tombstones a record and returns the tombstone version.
func (e *Engine) Delete(ctx context.Context, shardID string, id uint64) (uint64, error) {
	h, err := e.shards.Get(ctx, shardID)
	if err != nil {
		return 0, err
	}
	defer h.Release()
	return h.Store().Delete(ctx, id)
}

// Search returns up to k records most similar to query, similarity
// descending with ties broken by ascending id. Records scoring below
// threshold are excluded.
func (e *Engine) Search(ctx context.Context, shardID string, query []float32, k int, threshold float32) ([]vector.SearchResult, error) {
	h, err := e.shards.Get(ctx, shardID)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return e.searcher.Search(ctx, h.Store(), query, k, threshold, search.Options{
		NormSensitivity:  e.cfg.NormSensitivity,
		FullScanFraction: e.cfg.FullScanFraction,
	})
}

// Sync runs a delta sync session between a local shard and a peer replica.
func (e *Engine) Sync(ctx context.Context, shardID string, peer vecsync.Replica, direction vecsync.Direction) (vecsync.Stats, error) {
	h, err := e.shards.Get(ctx, shardID)
	if err != nil {
		return vecsync.Stats{}, err
	}
	defer h.Release()
	return e.repl.Sync(ctx, h.Store(), peer, direction)
}

// Compact reclaims tombstones and superseded versions every peer has
// acknowledged.
func (e *Engine) Compact(ctx context.Context, shardID string) error {
	h, err := e.shards.Get(ctx, shardID)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.Store().Compact(ctx)
}

// Stats returns physical statistics for a shard.
func (e *Engine) Stats(ctx context.Context, shardID string) (*shard.Stats, error) {
	h, err := e.shards.Get(ctx, shardID)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return h.Store().Stats(ctx)
}

// Replica pins a shard and returns it as a sync replica for another
// engine's Sync call, together with a release func the caller must run
// when the session is over.
func (e *Engine) Replica(ctx context.Context, shardID string) (vecsync.Replica, func(), error) {
	h, err := e.shards.Get(ctx, shardID)
	if err != nil {
		return nil, nil, err
	}
	return h.Store(), h.Release, nil
}

// Close flushes and closes every open shard.
func (e *Engine) Close(ctx context.Context) error {
	return e.shards.Close(ctx)
}
