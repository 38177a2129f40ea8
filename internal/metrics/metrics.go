// Package metrics holds the Prometheus collectors shared by all services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Idempotency gate
	IdempotencyRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_idempotency_requests_total",
		Help: "Gated requests by outcome (first, duplicate, missing_key, error)",
	}, []string{"outcome"})

	// Sync worker
	SyncEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_sync_events_total",
		Help: "Change events processed by the sync worker",
	}, []string{"event", "action", "status"})

	SyncBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inkwell_sync_batch_size",
		Help:    "Number of change events per processed batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	// Upsert pipeline
	UpsertMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_upsert_messages_total",
		Help: "Upsert messages by result (applied, skipped, invalid, retry, dead_letter)",
	}, []string{"result"})

	// Search gateway
	SearchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_search_requests_total",
		Help: "Search requests by status (ok, fallback)",
	}, []string{"status"})

	SearchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inkwell_search_latency_seconds",
		Help:    "Latency of search requests including fallbacks",
		Buckets: prometheus.DefBuckets,
	})

	CircuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "inkwell_circuit_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"breaker"})

	// Change feed puller
	ChangesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inkwell_puller_changes_published_total",
		Help: "Change events published to the queue",
	})

	PublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inkwell_puller_publish_errors_total",
		Help: "Failed change event publishes",
	})

	CheckpointErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inkwell_puller_checkpoint_errors_total",
		Help: "Failed checkpoint saves",
	})
)

func init() {
	prometheus.MustRegister(IdempotencyRequests)
	prometheus.MustRegister(SyncEvents)
	prometheus.MustRegister(SyncBatchSize)
	prometheus.MustRegister(UpsertMessages)
	prometheus.MustRegister(SearchRequests)
	prometheus.MustRegister(SearchLatency)
	prometheus.MustRegister(CircuitState)
	prometheus.MustRegister(ChangesPublished)
	prometheus.MustRegister(PublishErrors)
	prometheus.MustRegister(CheckpointErrors)
}
