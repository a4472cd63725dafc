package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Orchestrator Metrics
	SyncCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratingsync_cycles_total",
		Help: "The total number of sync cycles started",
	})
	SyncCyclesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratingsync_cycles_skipped_total",
		Help: "Ticks dropped because a previous cycle was still running",
	})
	SyncCyclesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ratingsync_cycles_in_flight",
		Help: "Number of sync cycles currently running",
	})
	SyncCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratingsync_cycle_duration_seconds",
		Help:    "Wall time of a complete sync cycle",
		Buckets: []float64{1, 5, 15, 30, 60, 90, 120, 180, 300},
	})
	TrackedPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ratingsync_tracked_players",
		Help: "Size of the tracked population at the last cycle",
	})

	// Scheduler Metrics
	FetchLaunchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratingsync_fetch_launched_total",
		Help: "The total number of player fetches launched",
	})
	FetchResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratingsync_fetch_results_total",
		Help: "Completed player fetches by result",
	}, []string{"result"})
	FetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratingsync_fetch_latency_seconds",
		Help:    "Latency of individual ranking service lookups",
		Buckets: prometheus.DefBuckets,
	})

	// Ledger Metrics
	LedgerBatchWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratingsync_ledger_batch_writes_total",
		Help: "The total number of committed batch write transactions by table",
	}, []string{"table"})
	LedgerWriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratingsync_ledger_write_errors_total",
		Help: "The total number of failed write transactions by table",
	}, []string{"table"})
	LedgerCommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratingsync_ledger_commit_latency_seconds",
		Help:    "Latency of ledger write transactions",
		Buckets: prometheus.DefBuckets,
	})

	// Notification and mirror Metrics
	NotificationsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratingsync_notifications_published_total",
		Help: "Match activity notifications delivered to the publisher",
	})
	NotificationErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratingsync_notification_errors_total",
		Help: "Match activity notifications that failed to publish",
	})
	MirrorWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratingsync_mirror_write_errors_total",
		Help: "Failed PostgreSQL mirror batch writes",
	})

	// Circuit breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ratingsync_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratingsync_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"name", "from", "to"})
)
