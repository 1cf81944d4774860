package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/viant/vecshard/engine"
	"github.com/viant/vecshard/metrics"
	"github.com/viant/vecshard/shard"
)

var (
	// ErrPoolExhausted is returned when the hot set is full of busy shards
	// and the wait queue has reached its depth limit.
	ErrPoolExhausted = errors.New("manager: pool exhausted")

	// ErrShardBusy is returned when dropping a shard that has open handles.
	ErrShardBusy = errors.New("manager: shard busy")

	// ErrClosed is returned for operations on a closed manager.
	ErrClosed = errors.New("manager: closed")
)

const (
	defaultCapacity   = 256
	defaultQueueDepth = 64
)

// Options configures a Manager.
type Options struct {
	// Dir is where shard databases live. ":memory:" keeps shards
	// in-memory; evicted in-memory shards cannot be reopened.
	Dir string

	// Capacity bounds shards open at once. Zero means 256.
	Capacity int

	// QueueDepth bounds callers waiting for a slot. Zero means 64.
	QueueDepth int

	// Engine tunes the underlying SQLite databases.
	Engine engine.Options

	// OnEvict runs after a shard leaves the hot set, outside manager
	// locks. The search layer hooks it to drop cached indexes.
	OnEvict func(shardID string)

	// Logger receives open/evict events. Nil means slog.Default().
	Logger *slog.Logger
}

// slot is one member of the hot set. refs counts outstanding handles; a
// slot is evictable only at refs zero. ready coordinates the one open per
// shard: concurrent getters wait on it instead of opening again.
type slot struct {
	id       string
	store    *shard.Store
	refs     int
	lastUsed time.Time
	ready    chan struct{}
	err      error
}

// Manager keeps a bounded hot set of open shards with LRU eviction of idle
// slots. Callers that find the set full of busy shards wait in a bounded
// queue; beyond the queue depth admission fails fast with ErrPoolExhausted.
type Manager struct {
	dir     string
	engOpts engine.Options
	queue   int
	sem     *semaphore.Weighted
	onEvict func(string)
	logger  *slog.Logger

	mu      sync.Mutex
	slots   map[string]*slot
	waiters int
	closed  bool
}

// New returns a manager rooted at opts.Dir.
func New(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("manager: dir is required")
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	queue := opts.QueueDepth
	if queue <= 0 {
		queue = defaultQueueDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Dir != ":memory:" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("manager: create dir %s: %w", opts.Dir, err)
		}
	}
	return &Manager{
		dir:     opts.Dir,
		engOpts: opts.Engine,
		queue:   queue,
		sem:     semaphore.NewWeighted(int64(capacity)),
		onEvict: opts.OnEvict,
		logger:  logger,
		slots:   map[string]*slot{},
	}, nil
}

// Handle pins a shard in the hot set. Release it when done; the store must
// not be used afterwards.
type Handle struct {
	m    *Manager
	sl   *slot
	once sync.Once
}

// Store returns the pinned shard store.
func (h *Handle) Store() *shard.Store { return h.sl.store }

// ShardID returns the pinned shard's id.
func (h *Handle) ShardID() string { return h.sl.id }

// Release unpins the shard. Releasing twice is a no-op.
func (h *Handle) Release() {
	h.once.Do(func() { h.m.release(h.sl) })
}

// CreateShard creates a new shard with the given dimension, admits it into
// the hot set, and returns its id. The new shard starts idle.
func (m *Manager) CreateShard(ctx context.Context, dimension int) (string, error) {
	if err := m.admit(ctx); err != nil {
		return "", err
	}
	store, err := shard.Create(ctx, m.dir, dimension, m.engOpts)
	if err != nil {
		m.sem.Release(1)
		return "", err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		store.Close()
		m.sem.Release(1)
		return "", ErrClosed
	}
	sl := &slot{id: store.ID(), store: store, lastUsed: time.Now(), ready: make(chan struct{})}
	close(sl.ready)
	m.slots[sl.id] = sl
	metrics.HotShards.Set(float64(len(m.slots)))
	m.mu.Unlock()

	m.logger.Debug("shard created", "shard", store.ID(), "dimension", dimension)
	return store.ID(), nil
}

// Get pins shardID in the hot set, opening it if cold, and returns a
// handle. Concurrent gets of a cold shard share a single open.
func (m *Manager) Get(ctx context.Context, shardID string) (*Handle, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if sl, ok := m.slots[shardID]; ok {
			sl.refs++
			sl.lastUsed = time.Now()
			m.mu.Unlock()

			select {
			case <-sl.ready:
			case <-ctx.Done():
				m.release(sl)
				return nil, ctx.Err()
			}
			if sl.err != nil {
				m.release(sl)
				return nil, sl.err
			}
			return &Handle{m: m, sl: sl}, nil
		}
		m.mu.Unlock()

		if err := m.admit(ctx); err != nil {
			return nil, err
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			m.sem.Release(1)
			return nil, ErrClosed
		}
		if _, ok := m.slots[shardID]; ok {
			// Lost the race to another opener; give the token back and
			// join their slot.
			m.mu.Unlock()
			m.sem.Release(1)
			continue
		}
		sl := &slot{id: shardID, refs: 1, lastUsed: time.Now(), ready: make(chan struct{})}
		m.slots[shardID] = sl
		metrics.HotShards.Set(float64(len(m.slots)))
		m.mu.Unlock()

		m.open(ctx, sl)
		if sl.err != nil {
			m.release(sl)
			return nil, sl.err
		}
		m.logger.Debug("shard opened", "shard", shardID)
		return &Handle{m: m, sl: sl}, nil
	}
}

func (m *Manager) open(ctx context.Context, sl *slot) {
	defer close(sl.ready)
	if m.dir == ":memory:" {
		sl.err = fmt.Errorf("manager: shard %s: %w", sl.id, shard.ErrShardNotFound)
		return
	}
	sl.store, sl.err = shard.Open(ctx, filepath.Join(m.dir, sl.id+".db"), m.engOpts)
}

// admit takes one hot-set token, evicting an idle shard if the set is full.
// When every slot is busy the caller waits, bounded by the queue depth.
func (m *Manager) admit(ctx context.Context) error {
	if m.sem.TryAcquire(1) {
		return nil
	}
	if m.evictIdle() && m.sem.TryAcquire(1) {
		return nil
	}

	m.mu.Lock()
	if m.waiters >= m.queue {
		m.mu.Unlock()
		return ErrPoolExhausted
	}
	m.waiters++
	metrics.WaitQueueDepth.Set(float64(m.waiters))
	m.mu.Unlock()

	err := m.sem.Acquire(ctx, 1)

	m.mu.Lock()
	m.waiters--
	metrics.WaitQueueDepth.Set(float64(m.waiters))
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("manager: wait for slot: %w", err)
	}
	return nil
}

// evictIdle closes the least recently used idle slot. It reports whether a
// slot was freed.
func (m *Manager) evictIdle() bool {
	m.mu.Lock()
	var victim *slot
	for _, sl := range m.slots {
		if sl.refs != 0 || sl.store == nil {
			continue
		}
		if victim == nil || sl.lastUsed.Before(victim.lastUsed) {
			victim = sl
		}
	}
	if victim == nil {
		m.mu.Unlock()
		return false
	}
	delete(m.slots, victim.id)
	metrics.HotShards.Set(float64(len(m.slots)))
	m.mu.Unlock()

	m.closeStore(victim)
	m.sem.Release(1)
	metrics.EvictionsTotal.Inc()
	m.logger.Debug("shard evicted", "shard", victim.id)
	return true
}

// release drops one reference. A slot that just went idle is closed
// immediately when waiters are queued for its token, or when its open
// failed and the slot is unusable.
func (m *Manager) release(sl *slot) {
	m.mu.Lock()
	sl.refs--
	sl.lastUsed = time.Now()
	evict := sl.refs == 0 && (m.waiters > 0 || sl.err != nil)
	if evict {
		if cur, ok := m.slots[sl.id]; ok && cur == sl {
			delete(m.slots, sl.id)
		}
		metrics.HotShards.Set(float64(len(m.slots)))
	}
	m.mu.Unlock()

	if evict {
		m.closeStore(sl)
		m.sem.Release(1)
		metrics.EvictionsTotal.Inc()
		m.logger.Debug("shard evicted", "shard", sl.id)
	}
}

// closeStore flushes and closes an evicted slot's store, then runs the
// eviction hook.
func (m *Manager) closeStore(sl *slot) {
	if sl.store != nil {
		if err := sl.store.Flush(context.Background()); err != nil {
			m.logger.Warn("flush before close failed", "shard", sl.id, "err", err)
		}
		if err := sl.store.Close(); err != nil {
			m.logger.Warn("close failed", "shard", sl.id, "err", err)
		}
	}
	if m.onEvict != nil {
		m.onEvict(sl.id)
	}
}

// DropShard removes a shard and its database file. The shard must have no
// open handles.
func (m *Manager) DropShard(ctx context.Context, shardID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	sl, open := m.slots[shardID]
	if open && sl.refs > 0 {
		m.mu.Unlock()
		return fmt.Errorf("manager: drop %s: %w", shardID, ErrShardBusy)
	}
	if open {
		delete(m.slots, shardID)
		metrics.HotShards.Set(float64(len(m.slots)))
	}
	m.mu.Unlock()

	if open {
		if sl.store != nil {
			if err := sl.store.Close(); err != nil {
				m.logger.Warn("close failed", "shard", shardID, "err", err)
			}
		}
		m.sem.Release(1)
		if m.onEvict != nil {
			m.onEvict(shardID)
		}
	}
	if m.dir == ":memory:" {
		if !open {
			return fmt.Errorf("manager: drop %s: %w", shardID, shard.ErrShardNotFound)
		}
		return nil
	}
	path := filepath.Join(m.dir, shardID+".db")
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) && open {
			return nil
		}
		if os.IsNotExist(err) {
			return fmt.Errorf("manager: drop %s: %w", shardID, shard.ErrShardNotFound)
		}
		return fmt.Errorf("manager: drop %s: %w", shardID, err)
	}
	// WAL sidecar files go with the database.
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
	return nil
}

// Close flushes and closes every open shard. Outstanding handles become
// invalid; callers must release them first.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	slots := make([]*slot, 0, len(m.slots))
	for _, sl := range m.slots {
		slots = append(slots, sl)
	}
	m.slots = map[string]*slot{}
	metrics.HotShards.Set(0)
	m.mu.Unlock()

	var firstErr error
	for _, sl := range slots {
		if sl.store == nil {
			continue
		}
		if err := sl.store.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := sl.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
