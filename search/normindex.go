package search

import (
	"context"
	"math"
	"sync"

	"github.com/tidwall/btree"

	"github.com/viant/vecshard/shard"
	"github.com/viant/vecshard/vector"
)

// normItem is one live record in the in-memory norm index, ordered by
// (norm, id) so a norm window maps to a contiguous tree range.
type normItem struct {
	norm     float32
	id       uint64
	vec      []float32
	metadata []byte
}

func normLess(a, b normItem) bool {
	if a.norm != b.norm {
		return a.norm < b.norm
	}
	return a.id < b.id
}

// cacheEntry holds the built index for one shard together with the version
// stamp it was built at. Building is coordinated so concurrent searches on a
// cold shard trigger a single scan.
type cacheEntry struct {
	mu       sync.Mutex
	cond     *sync.Cond
	building bool
	stamp    uint64
	tree     *btree.BTreeG[normItem]
	err      error
}

func newCacheEntry() *cacheEntry {
	e := &cacheEntry{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// indexCache caches per-shard norm indexes keyed by shard id.
type indexCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func newIndexCache() *indexCache {
	return &indexCache{entries: map[string]*cacheEntry{}}
}

func (c *indexCache) entry(shardID string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[shardID]
	if !ok {
		e = newCacheEntry()
		c.entries[shardID] = e
	}
	return e
}

// forget drops the cached index for a shard, used on eviction or drop.
func (c *indexCache) forget(shardID string) {
	c.mu.Lock()
	delete(c.entries, shardID)
	c.mu.Unlock()
}

// get returns an index current as of store.LastVersion, building or
// rebuilding it if stale. Waiters on an in-flight build block until it
// finishes rather than scanning the shard again.
func (c *indexCache) get(ctx context.Context, store *shard.Store) (*btree.BTreeG[normItem], error) {
	e := c.entry(store.ID())

	e.mu.Lock()
	for {
		if e.tree != nil && e.err == nil && e.stamp == store.LastVersion() {
			tree := e.tree
			e.mu.Unlock()
			return tree, nil
		}
		if !e.building {
			break
		}
		e.cond.Wait()
	}
	e.building = true
	e.mu.Unlock()

	// Stamp is read before the scan. A write landing mid-scan makes the
	// stamp stale, forcing a rebuild on the next search instead of serving
	// a silently incomplete index.
	stamp := store.LastVersion()
	tree, err := buildNormIndex(ctx, store)

	e.mu.Lock()
	e.building = false
	e.err = err
	if err == nil {
		e.tree = tree
		e.stamp = stamp
	}
	e.cond.Broadcast()
	e.mu.Unlock()
	return tree, err
}

func buildNormIndex(ctx context.Context, store *shard.Store) (*btree.BTreeG[normItem], error) {
	tree := btree.NewBTreeG(normLess)
	err := store.ForEachLive(ctx, 0, math.MaxFloat32, func(rec *vector.Record) error {
		tree.Set(normItem{norm: rec.Norm, id: rec.ID, vec: rec.Vector, metadata: rec.Metadata})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}
