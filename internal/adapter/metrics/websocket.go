package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebSocketMetrics holds Prometheus metrics for WebSocket connections.
// A nil *WebSocketMetrics is valid and records nothing.
type WebSocketMetrics struct {
	ActiveConnections   *prometheus.GaugeVec
	ConnectionsTotal    *prometheus.CounterVec
	ConnectionsRejected *prometheus.CounterVec
	ConnectionDuration  prometheus.Histogram
	MessageSendDuration prometheus.Histogram
	PingFailures        prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of registered WebSocket connections by role.",
		}, []string{"role"}),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted by role.",
		}, []string{"role"}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_rejected_total",
			Help:      "WebSocket connection attempts rejected before registration, by reason.",
		}, []string{"reason"}),
		ConnectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connection_duration_seconds",
			Help:      "Lifetime of WebSocket connections.",
			Buckets:   []float64{1, 10, 60, 300, 1800, 3600, 14400},
		}),
		MessageSendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "message_send_duration_seconds",
			Help:      "Time to write one message to a WebSocket.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Pings that could not be written.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.ConnectionsTotal, m.ConnectionsRejected,
		m.ConnectionDuration, m.MessageSendDuration, m.PingFailures)
	return m
}

func (m *WebSocketMetrics) Opened(role string) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(role).Inc()
	m.ConnectionsTotal.WithLabelValues(role).Inc()
}

func (m *WebSocketMetrics) Closed(role string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(role).Dec()
	m.ConnectionDuration.Observe(lifetime.Seconds())
}

func (m *WebSocketMetrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsRejected.WithLabelValues(reason).Inc()
}

func (m *WebSocketMetrics) Sent(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.MessageSendDuration.Observe(elapsed.Seconds())
}

func (m *WebSocketMetrics) PingFailed() {
	if m == nil {
		return
	}
	m.PingFailures.Inc()
}
