package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()

	// EngineOpCount counts engine operations by name and result.
	EngineOpCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "InventoryDB",
			Subsystem: "engine",
			Name:      "op_total",
			Help:      "engine operations by name and result",
		},
		[]string{"op", "result"},
	)

	// EngineOpDuration tracks engine operation latency in seconds.
	EngineOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "InventoryDB",
			Subsystem: "engine",
			Name:      "op_duration_seconds",
			Help:      "engine operation latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"op"},
	)

	// RetryQueueDepth is the number of mutations waiting for delayed retry.
	RetryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "InventoryDB",
			Subsystem: "retry",
			Name:      "queue_depth",
			Help:      "mutations waiting for delayed retry",
		},
	)

	// RetryDiscardTotal counts mutations dropped at the retry ceiling.
	RetryDiscardTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "InventoryDB",
			Subsystem: "retry",
			Name:      "discard_total",
			Help:      "mutations discarded after exhausting retries",
		},
	)

	// RetryAppliedTotal counts delayed mutations applied successfully.
	RetryAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "InventoryDB",
			Subsystem: "retry",
			Name:      "applied_total",
			Help:      "delayed mutations applied successfully",
		},
	)
)

func init() {
	Registry.MustRegister(
		EngineOpCount,
		EngineOpDuration,
		RetryQueueDepth,
		RetryDiscardTotal,
		RetryAppliedTotal,
	)
}
