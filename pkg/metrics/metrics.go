// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AzureRequestsTotal tracks outbound Azure management API requests
	AzureRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "azure_client",
			Name:      "requests_total",
			Help:      "Total number of outbound Azure management API requests",
		},
		[]string{"method", "status_code"},
	)

	// AzureRequestDuration tracks outbound request duration
	AzureRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "azure_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound Azure management API requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	// AzureThrottlesTotal tracks 429 responses from the management API
	AzureThrottlesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "azure_client",
			Name:      "throttles_total",
			Help:      "Total number of 429 responses from the Azure management API",
		},
	)

	// TokenRefreshesTotal tracks token refresh operations
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Total number of access token refresh operations",
		},
		[]string{"status"},
	)

	// IngestionRunsTotal tracks ingestion runs by status
	IngestionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Total number of ingestion runs by status",
		},
		[]string{"status"},
	)

	// IngestionRunDuration tracks full run duration in seconds
	IngestionRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "ingestion",
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// SubscriptionsProcessed tracks subscription-level ingestion outcomes
	SubscriptionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingestion",
			Name:      "subscriptions_total",
			Help:      "Total number of subscriptions processed by outcome",
		},
		[]string{"tenant_id", "outcome"},
	)

	// RecordsWritten tracks curated records written per connector
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "curated",
			Name:      "records_written_total",
			Help:      "Total number of curated records upserted per connector",
		},
		[]string{"connector"},
	)

	// RawSnapshotsWritten tracks raw snapshots written per connector
	RawSnapshotsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "rawstore",
			Name:      "snapshots_written_total",
			Help:      "Total number of raw snapshots written per connector",
		},
		[]string{"connector", "backend"},
	)

	// SchedulerCyclesTotal tracks scheduler job cycles by job and outcome
	SchedulerCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Total number of scheduler job cycles by outcome",
		},
		[]string{"job", "outcome"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)
)

// RecordAzureRequest records an outbound management API request metric
func RecordAzureRequest(method, statusCode string, durationSeconds float64) {
	AzureRequestsTotal.WithLabelValues(method, statusCode).Inc()
	AzureRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordIngestionRun records a completed run metric
func RecordIngestionRun(status string, durationSeconds float64) {
	IngestionRunsTotal.WithLabelValues(status).Inc()
	IngestionRunDuration.Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
