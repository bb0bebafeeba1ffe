package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the frame relay.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter

	framesReceivedTotal     prometheus.Counter
	framesRejectedTotal     *prometheus.CounterVec
	framesBroadcastTotal    prometheus.Counter
	viewerSendFailuresTotal prometheus.Counter
	producerConflictsTotal  prometheus.Counter
	streamsStartedTotal     prometheus.Counter
	streamsEndedTotal       *prometheus.CounterVec
	activeStreams           prometheus.Gauge
	connectedViewers        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the relay.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	framesReceivedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_frames_received_total",
		Help: "Total number of valid frames accepted from producers",
	})
	framesRejectedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_frames_rejected_total",
		Help: "Total number of frames rejected by the validator, by reason",
	}, []string{"reason"})
	framesBroadcastTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_frames_broadcast_total",
		Help: "Total number of frame deliveries to viewers",
	})
	viewerSendFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_viewer_send_failures_total",
		Help: "Total number of viewer sends that failed or timed out",
	})
	producerConflictsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_producer_conflicts_total",
		Help: "Total number of duplicate-producer handshakes refused",
	})
	streamsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_streams_started_total",
		Help: "Total number of streams started",
	})
	streamsEndedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_streams_ended_total",
		Help: "Total number of streams ended, by cause",
	}, []string{"cause"})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_streams",
		Help: "Number of streams currently registered",
	})
	connectedViewers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_viewers",
		Help: "Number of viewer connections currently attached",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		framesReceivedTotal,
		framesRejectedTotal,
		framesBroadcastTotal,
		viewerSendFailuresTotal,
		producerConflictsTotal,
		streamsStartedTotal,
		streamsEndedTotal,
		activeStreams,
		connectedViewers,
	)

	return &Metrics{
		registry:                registry,
		requestsTotal:           requestsTotal,
		errorsTotal:             errorsTotal,
		framesReceivedTotal:     framesReceivedTotal,
		framesRejectedTotal:     framesRejectedTotal,
		framesBroadcastTotal:    framesBroadcastTotal,
		viewerSendFailuresTotal: viewerSendFailuresTotal,
		producerConflictsTotal:  producerConflictsTotal,
		streamsStartedTotal:     streamsStartedTotal,
		streamsEndedTotal:       streamsEndedTotal,
		activeStreams:           activeStreams,
		connectedViewers:        connectedViewers,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncFramesReceived increments the accepted-frame counter.
func (m *Metrics) IncFramesReceived() {
	m.framesReceivedTotal.Inc()
}

// IncFramesRejected increments the rejected-frame counter for a reason.
func (m *Metrics) IncFramesRejected(reason string) {
	m.framesRejectedTotal.WithLabelValues(reason).Inc()
}

// AddFramesBroadcast adds n successful viewer deliveries.
func (m *Metrics) AddFramesBroadcast(n int) {
	if n > 0 {
		m.framesBroadcastTotal.Add(float64(n))
	}
}

// IncViewerSendFailures increments the failed viewer-send counter.
func (m *Metrics) IncViewerSendFailures() {
	m.viewerSendFailuresTotal.Inc()
}

// IncProducerConflicts increments the duplicate-producer counter.
func (m *Metrics) IncProducerConflicts() {
	m.producerConflictsTotal.Inc()
}

// IncStreamsStarted increments the streams started counter.
func (m *Metrics) IncStreamsStarted() {
	m.streamsStartedTotal.Inc()
}

// IncStreamsEnded increments the streams ended counter for a cause.
func (m *Metrics) IncStreamsEnded(cause string) {
	m.streamsEndedTotal.WithLabelValues(cause).Inc()
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// SetConnectedViewers sets the connected viewers gauge.
func (m *Metrics) SetConnectedViewers(n int) {
	m.connectedViewers.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// active streams and connected viewers).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
