package metrics

import (
	"time"

	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics holds Prometheus metrics for inbound readings and broadcast fan-out.
// A nil *RelayMetrics is valid and records nothing.
type RelayMetrics struct {
	ReadingsReceived   *prometheus.CounterVec
	ReadingsRejected   *prometheus.CounterVec
	Deliveries         *prometheus.CounterVec
	BroadcastDuration  prometheus.Histogram
	SlowViewersEvicted prometheus.Counter
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		ReadingsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "readings_received_total",
			Help:      "Readings accepted for broadcast, by ingest source.",
		}, []string{"source"}),
		ReadingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "readings_rejected_total",
			Help:      "Inbound payloads discarded before broadcast, by source and reason.",
		}, []string{"source", "reason"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Per-viewer broadcast outcomes (delivered, dropped, skipped_disconnected, failed).",
		}, []string{"outcome"}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "broadcast_duration_seconds",
			Help:      "Time to enqueue one reading to every viewer.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),
		SlowViewersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "slow_viewers_evicted_total",
			Help:      "Viewers disconnected after too many consecutive dropped readings.",
		}),
	}

	reg.MustRegister(m.ReadingsReceived, m.ReadingsRejected, m.Deliveries, m.BroadcastDuration, m.SlowViewersEvicted)
	return m
}

func (m *RelayMetrics) Received(source string) {
	if m == nil {
		return
	}
	m.ReadingsReceived.WithLabelValues(source).Inc()
}

func (m *RelayMetrics) Rejected(source, reason string) {
	if m == nil {
		return
	}
	m.ReadingsRejected.WithLabelValues(source, reason).Inc()
}

// ObserveBroadcast records the per-viewer outcomes of one fan-out.
func (m *RelayMetrics) ObserveBroadcast(report domain.BroadcastReport, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues("delivered").Add(float64(report.Delivered))
	m.Deliveries.WithLabelValues("dropped").Add(float64(report.Dropped))
	m.Deliveries.WithLabelValues("skipped_disconnected").Add(float64(report.SkippedDisconnected))
	m.Deliveries.WithLabelValues("failed").Add(float64(report.Failed))
	m.BroadcastDuration.Observe(elapsed.Seconds())
}

func (m *RelayMetrics) Evicted() {
	if m == nil {
		return
	}
	m.SlowViewersEvicted.Inc()
}
