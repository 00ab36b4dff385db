package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the camera session.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   prometheus.Counter
	commandsTotal   prometheus.Counter
	errorsTotal     prometheus.Counter
	streamActive    prometheus.Gauge
	recordActive    prometheus.Gauge
	recordingsTotal prometheus.Counter
}

// New creates and registers Prometheus metrics for the session server.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camwire_requests_total",
		Help: "Total number of HTTP requests received",
	})
	commandsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camwire_commands_total",
		Help: "Total number of protocol commands processed",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camwire_errors_total",
		Help: "Total number of failed commands and error responses",
	})
	streamActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camwire_stream_active",
		Help: "Whether a stream is currently active (0 or 1)",
	})
	recordActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camwire_recording_active",
		Help: "Whether a recording is currently active (0 or 1)",
	})
	recordingsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camwire_recordings_started_total",
		Help: "Total number of recordings started",
	})

	registry.MustRegister(
		requestsTotal,
		commandsTotal,
		errorsTotal,
		streamActive,
		recordActive,
		recordingsTotal,
	)

	return &Metrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		commandsTotal:   commandsTotal,
		errorsTotal:     errorsTotal,
		streamActive:    streamActive,
		recordActive:    recordActive,
		recordingsTotal: recordingsTotal,
	}
}

// IncRequests increments the total HTTP request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncCommands increments the processed command counter.
func (m *Metrics) IncCommands() {
	m.commandsTotal.Inc()
}

// IncErrors increments the error counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncRecordings increments the started recordings counter.
func (m *Metrics) IncRecordings() {
	m.recordingsTotal.Inc()
}

// SetStreamActive sets the stream activity gauge.
func (m *Metrics) SetStreamActive(active bool) {
	m.streamActive.Set(boolToGauge(active))
}

// SetRecordingActive sets the recording activity gauge.
func (m *Metrics) SetRecordingActive(active bool) {
	m.recordActive.Set(boolToGauge(active))
}

func boolToGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
