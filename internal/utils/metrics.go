package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	registry *prometheus.Registry

	requestCount   prometheus.Counter
	errorCount     prometheus.Counter
	operationTimes *prometheus.HistogramVec
	eventsSent     *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	streams        prometheus.Gauge

	systemStartTime time.Time
}

// NewMetricsCollector builds a collector on its own registry so tests can
// create as many as they like.
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chitchat_requests_total",
			Help: "HTTP requests handled.",
		}),
		errorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chitchat_errors_total",
			Help: "Requests that ended in a server error.",
		}),
		operationTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chitchat_operation_duration_seconds",
			Help:    "Latency of engine operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		eventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chitchat_events_delivered_total",
			Help: "Events handed to a live subscriber.",
		}, []string{"event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chitchat_events_dropped_total",
			Help: "Events dropped for lack of a subscriber or buffer space.",
		}, []string{"event"}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chitchat_open_streams",
			Help: "Currently connected event streams.",
		}),
		systemStartTime: time.Now(),
	}

	mc.registry.MustRegister(
		mc.requestCount,
		mc.errorCount,
		mc.operationTimes,
		mc.eventsSent,
		mc.eventsDropped,
		mc.streams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return mc
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.requestCount.Inc()
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.errorCount.Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationTimes.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) EventDelivered(event string) {
	mc.eventsSent.WithLabelValues(event).Inc()
}

func (mc *MetricsCollector) EventDropped(event string) {
	mc.eventsDropped.WithLabelValues(event).Inc()
}

func (mc *MetricsCollector) StreamOpened() { mc.streams.Inc() }

func (mc *MetricsCollector) StreamClosed() { mc.streams.Dec() }

func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.systemStartTime)
}

func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler exposes the collector in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
