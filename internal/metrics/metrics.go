// Package metrics provides Prometheus metrics for TuskGuard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tuskguard"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Ingestion metrics
var (
	// ReadingsTotal counts ingested payloads by provider, transport and result.
	ReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_total",
			Help:      "Total GPS payloads processed",
		},
		[]string{"provider", "transport", "result"}, // result: stored, invalid_coordinate, unknown_device, malformed, error
	)

	// IngestDuration tracks end-to-end ingestion latency.
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "GPS ingestion latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// MQTTMessagesTotal counts MQTT messages received.
	MQTTMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "messages_total",
			Help:      "Total MQTT messages received",
		},
	)
)

// Alert metrics
var (
	// AlertsGenerated counts admitted alerts.
	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "generated_total",
			Help:      "Total alerts admitted by the cooldown gate",
		},
		[]string{"kind", "level"},
	)

	// AlertsSuppressed counts candidates rejected by the cooldown gate.
	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Total candidate alerts suppressed by cooldown",
		},
		[]string{"kind"},
	)

	// AlertErrors counts alerts that failed to persist.
	AlertErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "errors_total",
			Help:      "Total alerts that failed to persist",
		},
		[]string{"kind"},
	)
)

// Delivery metrics
var (
	// DeliveriesTotal counts notification attempts by channel and result.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "deliveries_total",
			Help:      "Total notification delivery attempts",
		},
		[]string{"channel", "result"}, // success, failure
	)

	// DeliveryDuration tracks per-call delivery latency.
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "delivery_duration_seconds",
			Help:      "Notification delivery latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
)

// Check metrics
var (
	// ChecksTotal counts periodic check runs.
	ChecksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "runs_total",
			Help:      "Total periodic check runs",
		},
	)

	// CheckDuration tracks periodic check duration.
	CheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "duration_seconds",
			Help:      "Periodic check duration in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
	)

	// CheckEntityErrors counts per-entity evaluation errors.
	CheckEntityErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "entity_errors_total",
			Help:      "Total per-entity evaluation errors",
		},
	)
)

// Storage metrics
var (
	// StorageOperationDuration tracks database operation latency.
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Storage operation latency in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Auth metrics
var (
	// AuthAttemptsTotal counts bearer token validations.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total authentication attempts",
		},
		[]string{"result"}, // success, missing, malformed, invalid
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
