package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/amiralifaghihirad/Project-ECM/internal/adapter/metrics"
	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Ingest sources, used in logs and metric labels.
const (
	SourceWebSocket = "websocket"
	SourceHTTP      = "http"
	SourceRedis     = "redis"
)

// RelayConfig tunes parsing and slow-viewer handling.
type RelayConfig struct {
	// PrimaryField is used as the reading value when a payload has no "value".
	PrimaryField string
	// EvictAfter disconnects a viewer after this many consecutive dropped
	// readings. Zero keeps slow viewers connected indefinitely.
	EvictAfter int
	// WindowSize is the number of recent readings kept for inspection.
	WindowSize int
}

// Relay turns inbound payloads into fan-out deliveries to every registered viewer.
//
// A full viewer queue drops the reading for that viewer only; the broadcaster
// never blocks on a viewer. Broadcast runs on the caller's goroutine, so
// readings from a single producer reach each viewer in arrival order.
type Relay struct {
	registry     *Registry
	clock        clockwork.Clock
	metrics      *metrics.RelayMetrics
	window       *Window
	primaryField string
	evictAfter   int
	totals       relayTotals
}

type relayTotals struct {
	received            atomic.Uint64
	rejected            atomic.Uint64
	delivered           atomic.Uint64
	dropped             atomic.Uint64
	skippedDisconnected atomic.Uint64
	failed              atomic.Uint64
}

func NewRelay(registry *Registry, clock clockwork.Clock, relayMetrics *metrics.RelayMetrics, cfg RelayConfig) *Relay {
	return &Relay{
		registry:     registry,
		clock:        clock,
		metrics:      relayMetrics,
		window:       NewWindow(cfg.WindowSize),
		primaryField: cfg.PrimaryField,
		evictAfter:   cfg.EvictAfter,
	}
}

// ParseInbound decodes a raw inbound payload. Malformed payloads return a
// *domain.ParseError and must not be broadcast.
func (r *Relay) ParseInbound(raw []byte) (domain.Reading, error) {
	return parseReading(raw, r.clock.Now(), r.primaryField)
}

// Publish parses raw and broadcasts the result. Parse failures are logged
// and counted, then returned to the caller; nothing is delivered.
func (r *Relay) Publish(ctx context.Context, source string, raw []byte) (domain.BroadcastReport, error) {
	reading, err := r.ParseInbound(raw)
	if err != nil {
		reason := "unknown"
		var parseErr *domain.ParseError
		if errors.As(err, &parseErr) {
			reason = parseErr.Reason
		}
		r.Reject(ctx, source, reason)
		slog.WarnContext(ctx, "Discarding malformed reading", "source", source, "reason", reason, "error", err)
		return domain.BroadcastReport{}, err
	}

	r.totals.received.Add(1)
	r.metrics.Received(source)

	report := r.Broadcast(reading)
	slog.DebugContext(ctx, "Reading broadcast",
		"source", source,
		"value", reading.Value,
		"delivered", report.Delivered,
		"dropped", report.Dropped,
		"skipped_disconnected", report.SkippedDisconnected,
		"failed", report.Failed,
	)
	return report, nil
}

// Reject counts an inbound message that was discarded before parsing.
func (r *Relay) Reject(_ context.Context, source, reason string) {
	r.totals.rejected.Add(1)
	r.metrics.Rejected(source, reason)
}

// Broadcast enqueues reading to every viewer in a registry snapshot.
//
// Per viewer: a dead connection is skipped and unregistered; a full queue
// drops the reading (evicting the viewer once EvictAfter drops have piled
// up); a connection that closes mid-send is counted failed and unregistered.
// No outcome for one viewer affects the others.
func (r *Relay) Broadcast(reading domain.Reading) domain.BroadcastReport {
	start := r.clock.Now()
	var report domain.BroadcastReport

	snapshot := r.registry.Snapshot()
	r.window.Push(reading)

	data, err := json.Marshal(reading)
	if err != nil {
		slog.Error("Failed to marshal reading", "error", err)
		for _, conn := range snapshot {
			if conn.Role() == domain.RoleViewer {
				report.Failed++
			}
		}
		r.record(report, start)
		return report
	}

	for _, conn := range snapshot {
		if conn.Role() != domain.RoleViewer {
			continue
		}

		if !conn.Alive() {
			report.SkippedDisconnected++
			r.registry.Unregister(conn.ID())
			continue
		}

		sendErr := conn.Enqueue(data)
		switch {
		case sendErr == nil:
			report.Delivered++
		case errors.Is(sendErr, domain.ErrQueueFull):
			if r.evictAfter > 0 && conn.ConsecutiveDrops() >= r.evictAfter {
				slog.Warn("Evicting slow viewer", "conn_id", conn.ID().String(), "consecutive_drops", conn.ConsecutiveDrops())
				r.metrics.Evicted()
				conn.Abort()
				r.registry.Unregister(conn.ID())
				report.Failed++
				continue
			}
			report.Dropped++
		default:
			report.Failed++
			r.registry.Unregister(conn.ID())
		}
	}

	r.record(report, start)
	return report
}

func (r *Relay) record(report domain.BroadcastReport, start time.Time) {
	r.totals.delivered.Add(uint64(report.Delivered))
	r.totals.dropped.Add(uint64(report.Dropped))
	r.totals.skippedDisconnected.Add(uint64(report.SkippedDisconnected))
	r.totals.failed.Add(uint64(report.Failed))
	r.metrics.ObserveBroadcast(report, r.clock.Since(start))
}

// Recent returns the latest readings, oldest first.
func (r *Relay) Recent() []domain.Reading {
	return r.window.Readings()
}

// Stats is a point-in-time summary of relay activity since startup.
type Stats struct {
	Producers           int              `json:"producers"`
	Viewers             int              `json:"viewers"`
	ReadingsReceived    uint64           `json:"readings_received"`
	ReadingsRejected    uint64           `json:"readings_rejected"`
	Delivered           uint64           `json:"delivered"`
	Dropped             uint64           `json:"dropped"`
	SkippedDisconnected uint64           `json:"skipped_disconnected"`
	Failed              uint64           `json:"failed"`
	Recent              []domain.Reading `json:"recent"`
}

func (r *Relay) Stats() Stats {
	return Stats{
		Producers:           r.registry.Count(domain.RoleProducer),
		Viewers:             r.registry.Count(domain.RoleViewer),
		ReadingsReceived:    r.totals.received.Load(),
		ReadingsRejected:    r.totals.rejected.Load(),
		Delivered:           r.totals.delivered.Load(),
		Dropped:             r.totals.dropped.Load(),
		SkippedDisconnected: r.totals.skippedDisconnected.Load(),
		Failed:              r.totals.failed.Load(),
		Recent:              r.window.Readings(),
	}
}
