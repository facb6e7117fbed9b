package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 扇出流水线与读路径的核心指标
var (
	FanoutJobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanout_jobs_enqueued_total",
		Help: "Fan-out jobs enqueued, labelled by strategy (push/pull).",
	}, []string{"strategy"})

	FanoutEntriesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanout_feed_entries_written_total",
		Help: "Feed entries materialized (duplicates excluded).",
	})

	FanoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fanout_latency_seconds",
		Help:    "Outbox enqueue to materialization-complete latency.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	FeedReadLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_read_latency_seconds",
		Help:    "GetFeed end-to-end latency.",
		Buckets: prometheus.DefBuckets,
	})

	FeedPartialPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_partial_pages_total",
		Help: "Feed pages returned partially due to deadline.",
	})

	SweepRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_fanout_requeued_total",
		Help: "Missing deliveries re-enqueued by the reconciliation sweep.",
	})

	SweepOrphansPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_orphan_entries_purged_total",
		Help: "Feed entries removed because the follow edge is gone.",
	})

	CounterDriftFixed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interaction_counter_drift_fixed_total",
		Help: "Posts whose like/comment counters were corrected by reconciliation.",
	})
)
