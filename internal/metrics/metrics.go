package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// Request handling metrics
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Transport metrics
	MessagesReceived *prometheus.CounterVec
	ResponsesSent    *prometheus.CounterVec
	ActiveDevices    prometheus.Gauge

	// Event publishing metrics
	EventPublishTotal *prometheus.CounterVec
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics creates a new Metrics instance with all required metrics
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	// Return existing instance if already created
	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of handled requests",
		}, []string{"request_type", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Request handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"request_type", "status"}),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_messages_received_total",
			Help: "Total number of messages received from the transport",
		}, []string{"outcome"}),

		ResponsesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_responses_sent_total",
			Help: "Total number of responses published to the transport",
		}, []string{"status"}),

		ActiveDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_active_devices",
			Help: "Number of devices with a live session entry",
		}),

		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_event_publish_total",
			Help: "Total number of events published to the write pipeline",
		}, []string{"event_type", "status"}),
	}

	// Register metrics with the default registry
	registerMetrics(m)

	// Store as global instance
	globalMetrics = m

	return m
}

// registerMetrics registers all metrics with the default registry
func registerMetrics(m *Metrics) {
	registerOrGet(m.RequestTotal)
	registerOrGet(m.RequestDuration)
	registerOrGet(m.MessagesReceived)
	registerOrGet(m.ResponsesSent)
	registerOrGet(m.ActiveDevices)
	registerOrGet(m.EventPublishTotal)
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		// If already registered, return the existing collector
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
