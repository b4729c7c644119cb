// Package metrics holds the Prometheus collectors exposed at the service's
// metrics endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide metrics container, built once at startup from
// the [service.metrics] config.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	EventsIngestedTotal  *prometheus.CounterVec
	EventBytesIngested   *prometheus.CounterVec
	EventsRejectedTotal  *prometheus.CounterVec
	ProcessorErrorsTotal *prometheus.CounterVec

	ProducerSendTotal    *prometheus.CounterVec
	ProducerSendDuration *prometheus.HistogramVec
	ProducerQueueDepth   *prometheus.GaugeVec

	RateLimitedTotal *prometheus.CounterVec

	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics registers every collector under the given namespace/subsystem
// and stores the result as the process default.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of ingest HTTP requests",
			},
			[]string{"schema_id", "method", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of ingest HTTP requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"schema_id", "method"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of ingest HTTP requests being processed",
			},
		),

		EventsIngestedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_ingested_total",
				Help:      "Total number of events accepted and handed to a producer",
			},
			[]string{"schema_id"},
		),

		EventBytesIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "event_bytes_ingested_total",
				Help:      "Total bytes of event payload accepted",
			},
			[]string{"schema_id"},
		),

		EventsRejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_rejected_total",
				Help:      "Total number of events rejected before reaching a producer",
			},
			[]string{"schema_id", "reason"},
		),

		ProcessorErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "processor_errors_total",
				Help:      "Total number of processor plugin errors",
			},
			[]string{"schema_id", "callable_path"},
		),

		ProducerSendTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "producer_send_total",
				Help:      "Total number of records handed to a broker producer",
			},
			[]string{"producer", "topic", "status"},
		),

		ProducerSendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "producer_send_duration_seconds",
				Help:      "Time from Produce() call to broker acknowledgement",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"producer", "topic"},
		),

		ProducerQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "producer_queue_depth",
				Help:      "Number of records buffered but not yet acknowledged",
			},
			[]string{"producer"},
		),

		RateLimitedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limited_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
			[]string{"schema_id"},
		),

		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service build information",
			},
			[]string{"version"},
		),
	}

	prometheus.MustRegister(NewRuntimeCollector(namespace, subsystem))

	defaultMetrics = m
	return m
}

// Get returns the process default metrics, initializing a bare "ingest"
// namespace instance on first use by a caller that skipped InitMetrics
// (mainly tests).
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("ingest", "")
	}
	return defaultMetrics
}

// RecordHTTPRequest records one completed ingest HTTP request.
func (m *Metrics) RecordHTTPRequest(schemaID, method, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(schemaID, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(schemaID, method).Observe(duration.Seconds())
}

// RecordEventIngested records one event successfully handed to a producer.
func (m *Metrics) RecordEventIngested(schemaID string, bytes int) {
	m.EventsIngestedTotal.WithLabelValues(schemaID).Inc()
	m.EventBytesIngested.WithLabelValues(schemaID).Add(float64(bytes))
}

// RecordEventRejected records one event rejected before reaching a producer.
func (m *Metrics) RecordEventRejected(schemaID, reason string) {
	m.EventsRejectedTotal.WithLabelValues(schemaID, reason).Inc()
}

// RecordProcessorError records a processor plugin failure.
func (m *Metrics) RecordProcessorError(schemaID, callablePath string) {
	m.ProcessorErrorsTotal.WithLabelValues(schemaID, callablePath).Inc()
}

// RecordProducerSend records the outcome and latency of one broker send.
func (m *Metrics) RecordProducerSend(producer, topic, status string, duration time.Duration) {
	m.ProducerSendTotal.WithLabelValues(producer, topic, status).Inc()
	m.ProducerSendDuration.WithLabelValues(producer, topic).Observe(duration.Seconds())
}

// SetProducerQueueDepth reports the current number of unacknowledged
// records buffered for a producer.
func (m *Metrics) SetProducerQueueDepth(producer string, depth int) {
	m.ProducerQueueDepth.WithLabelValues(producer).Set(float64(depth))
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited(schemaID string) {
	m.RateLimitedTotal.WithLabelValues(schemaID).Inc()
}

// SetServiceInfo publishes the running build's version as a gauge.
func (m *Metrics) SetServiceInfo(version string) {
	m.ServiceInfo.WithLabelValues(version).Set(1)
}

// Handler returns the HTTP handler to mount at the configured metrics path.
func Handler() http.Handler {
	return promhttp.Handler()
}
