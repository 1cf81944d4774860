// Package metrics exposes Prometheus collectors for the engine. Collectors
// register on the default registry; serve them with promhttp in the host
// process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts similarity searches served.
	SearchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vecshard",
		Name:      "searches_total",
		Help:      "Similarity searches served.",
	})

	// SyncSessionsTotal counts sync sessions by direction and outcome.
	SyncSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vecshard",
		Name:      "sync_sessions_total",
		Help:      "Sync sessions by direction and outcome.",
	}, []string{"direction", "outcome"})

	// SyncRecordsTotal counts records shipped during sync.
	SyncRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vecshard",
		Name:      "sync_records_total",
		Help:      "Records shipped during sync sessions.",
	})

	// SyncConflictsTotal counts conflicts resolved during sync.
	SyncConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vecshard",
		Name:      "sync_conflicts_total",
		Help:      "Conflicting writes resolved during sync.",
	})

	// HotShards tracks shards currently open in the manager's hot set.
	HotShards = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vecshard",
		Name:      "hot_shards",
		Help:      "Shards currently open in the hot set.",
	})

	// EvictionsTotal counts shards evicted from the hot set.
	EvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vecshard",
		Name:      "evictions_total",
		Help:      "Shards evicted from the hot set.",
	})

	// WaitQueueDepth tracks callers waiting for a hot-set slot.
	WaitQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vecshard",
		Name:      "wait_queue_depth",
		Help:      "Callers waiting for a hot-set slot.",
	})
)
