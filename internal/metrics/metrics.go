// Package metrics declares the Prometheus instrumentation surface for the
// synthesis core, following the teacher's promauto var-block convention.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts every outbound chat REST call by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operations_total",
			Help: "Total number of outbound operations by type and outcome",
		},
		[]string{"operation", "status"},
	)

	// OperationLatencySeconds tracks the duration of outbound calls.
	OperationLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "operation_latency_seconds",
			Help:    "Duration of outbound operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"operation"},
	)

	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of synthesis jobs enqueued",
		},
		[]string{"type"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of synthesis jobs completed",
		},
		[]string{"type"},
	)

	JobsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of synthesis jobs that reached the failed state",
		},
		[]string{"type", "reason"},
	)

	JobsRetriedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_retried_total",
			Help: "Total number of synthesis job retry attempts",
		},
		[]string{"type"},
	)

	IdempotencyHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotency_hits_total",
			Help: "Total number of idempotency checks that found an existing key",
		},
	)

	IdempotencyMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotency_misses_total",
			Help: "Total number of idempotency checks that found no existing key",
		},
	)

	Platform429Total = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_429_total",
			Help: "Total number of 429 responses observed from the chat platform",
		},
		[]string{"type", "guild", "global"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of synthesis jobs per state",
		},
		[]string{"state"},
	)

	TokenBucketAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "token_bucket_available",
			Help: "Tokens currently available in the global token bucket",
		},
	)
)
