// Package stats exposes the core's Prometheus metrics, in the shape
// of weed/stats/metrics.go: a package-level registry plus
// CounterVec/GaugeVec/HistogramVec values callers update inline.
package stats

import "github.com/prometheus/client_golang/prometheus"

const namespace = "leo_storage"

var Gather = prometheus.NewRegistry()

var (
	PoolRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "rejected_total",
		Help:      "Tasks rejected by a named worker pool because its pending depth exceeded the admission limit.",
	}, []string{"pool"})

	PoolPendingDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "pending_depth",
		Help:      "Current aggregate pending depth of a named worker pool.",
	}, []string{"pool"})

	ReplicateQuorumLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "replicate",
		Name:      "quorum_seconds",
		Help:      "Time from dispatch to quorum for a replicated mutation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	ReplicateOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "replicate",
		Name:      "outcome_total",
		Help:      "Replicator outcomes by method and result kind.",
	}, []string{"method", "kind"})

	ReadRepairTriggered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "read_repair",
		Name:      "triggered_total",
		Help:      "Background repairs spawned after a primary read found remaining replicas to reconcile.",
	}, []string{})

	ReadRepairOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "read_repair",
		Name:      "outcome_total",
		Help:      "Background repair outcomes.",
	}, []string{"kind"})

	WatchdogQueueConcurrencyDelta = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watchdog",
		Name:      "queue_concurrency_delta_total",
		Help:      "increase()/decrease() calls issued against named queues by the adaptive controller.",
	}, []string{"queue", "direction"})

	CompactionTriggered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watchdog",
		Name:      "compaction_triggered_total",
		Help:      "Opportunistic compactions triggered by the fragmentation watchdog channel.",
	}, []string{})

	DirDeleteObjectsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dirdelete",
		Name:      "objects_enqueued_total",
		Help:      "ASYNC_DELETE_OBJ messages published by a recursive directory delete's prefix scan.",
	}, []string{})
)

func init() {
	Gather.MustRegister(
		PoolRejected,
		PoolPendingDepth,
		ReplicateQuorumLatency,
		ReplicateOutcome,
		ReadRepairTriggered,
		ReadRepairOutcome,
		WatchdogQueueConcurrencyDelta,
		CompactionTriggered,
		DirDeleteObjectsEnqueued,
	)
}
