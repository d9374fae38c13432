package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus counters and gauges of one match client.
// It satisfies client.Metrics.
type Metrics struct {
	registry       *prometheus.Registry
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	heartbeats     *prometheus.CounterVec
	decodeErrors   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	clientErrors   *prometheus.CounterVec
	roomActors     prometheus.Gauge
	statusRequests prometheus.Counter
}

// NewMetrics creates and registers the client metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	framesSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchlink_frames_sent_total",
		Help: "Total number of frames written, by server role",
	}, []string{"role"})
	framesReceived := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchlink_frames_received_total",
		Help: "Total number of frames read, by server role",
	}, []string{"role"})
	heartbeats := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchlink_heartbeats_sent_total",
		Help: "Total number of keep-alive heartbeats written, by server role",
	}, []string{"role"})
	decodeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchlink_decode_errors_total",
		Help: "Total number of inbound messages that could not be decoded, by server role",
	}, []string{"role"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchlink_state_transitions_total",
		Help: "Total number of client state transitions",
	}, []string{"from", "to"})
	clientErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchlink_client_errors_total",
		Help: "Total number of errors reported to the handler, by error code",
	}, []string{"code"})
	roomActors := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchlink_room_actors",
		Help: "Number of actors in the joined room",
	})
	statusRequests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchlink_status_requests_total",
		Help: "Total number of requests served by the status API",
	})

	registry.MustRegister(
		framesSent,
		framesReceived,
		heartbeats,
		decodeErrors,
		transitions,
		clientErrors,
		roomActors,
		statusRequests,
	)

	return &Metrics{
		registry:       registry,
		framesSent:     framesSent,
		framesReceived: framesReceived,
		heartbeats:     heartbeats,
		decodeErrors:   decodeErrors,
		transitions:    transitions,
		clientErrors:   clientErrors,
		roomActors:     roomActors,
		statusRequests: statusRequests,
	}
}

// FrameSent counts one outbound frame for role.
func (m *Metrics) FrameSent(role string) {
	m.framesSent.WithLabelValues(role).Inc()
}

// FrameReceived counts one inbound frame for role.
func (m *Metrics) FrameReceived(role string) {
	m.framesReceived.WithLabelValues(role).Inc()
}

// HeartbeatSent counts one keep-alive heartbeat for role.
func (m *Metrics) HeartbeatSent(role string) {
	m.heartbeats.WithLabelValues(role).Inc()
}

// DecodeError counts one undecodable message for role.
func (m *Metrics) DecodeError(role string) {
	m.decodeErrors.WithLabelValues(role).Inc()
}

// StateChanged counts a transition between two client states.
func (m *Metrics) StateChanged(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// ClientError counts an error delivered to the handler.
func (m *Metrics) ClientError(code int) {
	m.clientErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RoomActors sets the joined room's actor gauge.
func (m *Metrics) RoomActors(n int) {
	m.roomActors.Set(float64(n))
}

// IncStatusRequests counts one status API request.
func (m *Metrics) IncStatusRequests() {
	m.statusRequests.Inc()
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
