package engine

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// DurabilityMode selects the flush guarantee for shard writes.
type DurabilityMode string

const (
	// DurabilityFast makes writes visible immediately with no flush
	// guarantee before a crash.
	DurabilityFast DurabilityMode = "fast"

	// DurabilityBalanced flushes periodically (WAL + synchronous=NORMAL).
	DurabilityBalanced DurabilityMode = "balanced"

	// DurabilityDurable flushes before acknowledging every write.
	DurabilityDurable DurabilityMode = "durable"
)

// Valid reports whether m is a recognized durability mode.
func (m DurabilityMode) Valid() bool {
	switch m {
	case DurabilityFast, DurabilityBalanced, DurabilityDurable:
		return true
	}
	return false
}

func (m DurabilityMode) synchronous() string {
	switch m {
	case DurabilityFast:
		return "OFF"
	case DurabilityDurable:
		return "FULL"
	default:
		return "NORMAL"
	}
}

// Options tunes a shard database connection pool.
type Options struct {
	Durability DurabilityMode

	// CacheSizePages is passed to PRAGMA cache_size; negative values are
	// KiB per SQLite convention. Zero keeps the driver default.
	CacheSizePages int

	// MmapSize enables memory-mapped I/O when > 0.
	MmapSize int64

	// BusyTimeoutMS bounds lock waits between pooled connections.
	BusyTimeoutMS int
}

// DefaultOptions mirrors the engine defaults: balanced durability, 2MiB page
// cache, 64MiB mmap window, 5s busy timeout.
func DefaultOptions() Options {
	return Options{
		Durability:     DurabilityBalanced,
		CacheSizePages: -2000,
		MmapSize:       64 << 20,
		BusyTimeoutMS:  5000,
	}
}

// Open opens a SQLite database for the given path and applies opts to every
// connection in the pool via DSN pragmas. For file-based databases, pass a
// path like "./shard.db"; pass ":memory:" for an in-memory database (the
// pool is then capped at one connection so all statements share the same
// database).
func Open(path string, opts Options) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("engine: empty database path")
	}
	if opts.Durability == "" {
		opts.Durability = DurabilityBalanced
	}
	if !opts.Durability.Valid() {
		return nil, fmt.Errorf("engine: unknown durability mode %q", opts.Durability)
	}

	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	db, err := sql.Open("sqlite", dsn(path, opts, memory))
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", path, err)
	}
	if memory {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// dsn renders the connection string with _pragma parameters so tuning applies
// to every pooled connection, not just the first one opened.
func dsn(path string, opts Options, memory bool) string {
	pragmas := make([]string, 0, 6)
	add := func(p string) { pragmas = append(pragmas, "_pragma="+url.QueryEscape(p)) }

	if opts.BusyTimeoutMS > 0 {
		add(fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeoutMS))
	}
	if !memory {
		add("journal_mode(WAL)")
	}
	add(fmt.Sprintf("synchronous(%s)", opts.Durability.synchronous()))
	if opts.CacheSizePages != 0 {
		add(fmt.Sprintf("cache_size(%d)", opts.CacheSizePages))
	}
	add("temp_store(MEMORY)")
	if opts.MmapSize > 0 && !memory {
		add(fmt.Sprintf("mmap_size(%d)", opts.MmapSize))
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(pragmas, "&")
}
