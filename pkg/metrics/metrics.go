package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pharos_stats"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// CacheLookups is labelled by backend and result (hit, miss, expired, corrupt).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "freshness_cache_lookups_total",
			Help:      "Freshness cache lookups by result",
		},
		[]string{"backend", "result"},
	)
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "freshness_cache_evictions_total",
			Help:      "Entries removed by size-triggered cleanup",
		},
	)

	// UpstreamAttempts is labelled by route (proxy, direct) and outcome (ok, transient, data).
	UpstreamAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_attempts_total",
			Help:      "Upstream fetch attempts by route and outcome",
		},
		[]string{"route", "outcome"},
	)

	// RankLookups is labelled by source: index, count or unavailable.
	RankLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rank_lookups_total",
			Help:      "Rank lookups by the source that answered them",
		},
		[]string{"source"},
	)
	RankIndexRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rank_index_rebuilds_total",
			Help:      "Rank index rebuilds by result",
		},
		[]string{"result"},
	)
	SnapshotBuilds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_snapshot_builds_total",
			Help:      "Full leaderboard snapshot computations",
		},
	)
	StoreWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_failures_total",
			Help:      "Persistent store writes that failed and were skipped",
		},
		[]string{"op"},
	)
)
