package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/amiralifaghihirad/Project-ECM/internal/adapter/metrics"
	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/amiralifaghihirad/Project-ECM/internal/platform/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// ErrHubClosed is returned by Attach once Shutdown has started.
var ErrHubClosed = errors.New("hub is shutting down")

// Rejection reasons for inbound frames that never reach the parser.
const (
	reasonViewerMessage = "viewer_message"
	reasonBinaryFrame   = "binary_frame"
)

// HubConfig sizes per-connection resources.
type HubConfig struct {
	// QueueSize is the outbound queue capacity per connection.
	QueueSize int
	// MaxMessageBytes limits the size of one inbound frame.
	MaxMessageBytes int64
}

// Hub binds WebSocket connections to the registry and the relay: it registers
// accepted sockets, runs their receive loops, and tears them down.
type Hub struct {
	registry        *Registry
	relay           *Relay
	clock           clockwork.Clock
	wsMetrics       *metrics.WebSocketMetrics
	queueSize       int
	maxMessageBytes int64
	closing         atomic.Bool
	shutdownReason  atomic.Value
}

func NewHub(registry *Registry, relay *Relay, clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics, cfg HubConfig) *Hub {
	return &Hub{
		registry:        registry,
		relay:           relay,
		clock:           clock,
		wsMetrics:       wsMetrics,
		queueSize:       cfg.QueueSize,
		maxMessageBytes: cfg.MaxMessageBytes,
	}
}

// Attach wraps an upgraded socket in a Connection with a fresh ID and
// registers it. On failure the socket is closed; other connections are unaffected.
func (h *Hub) Attach(ws *websocket.Conn, role domain.Role, remoteAddr string) (*Connection, error) {
	if h.closing.Load() {
		_ = ws.Close()
		return nil, ErrHubClosed
	}

	conn := newConnection(uuid.New(), role, remoteAddr, ws, h.queueSize, h.clock, h.wsMetrics)
	if err := h.registry.Register(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("attach connection: %w", err)
	}

	// Shutdown may have taken its snapshot between the check above and Register.
	if h.closing.Load() {
		reason, _ := h.shutdownReason.Load().(string)
		conn.CloseGraceful(reason)
		h.registry.Unregister(conn.ID())
		return nil, ErrHubClosed
	}

	h.wsMetrics.Opened(role.String())
	slog.Debug("Connection registered",
		"conn_id", conn.ID().String(),
		"role", role.String(),
		"remote_addr", remoteAddr,
		"total", h.registry.Len(),
	)
	return conn, nil
}

// Serve runs conn's receive loop until the peer disconnects or a read fails,
// then closes the connection and removes it from the registry. Producer
// frames are published; viewer frames are discarded. A malformed payload only
// drops that payload.
func (h *Hub) Serve(ctx context.Context, conn *Connection) {
	ctx = logging.WithConnection(ctx, conn.ID().String(), conn.Role().String())
	defer h.teardown(ctx, conn)

	if h.maxMessageBytes > 0 {
		conn.connection.SetReadLimit(h.maxMessageBytes)
	}

	for {
		messageType, data, err := conn.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.WarnContext(ctx, "Connection closed unexpectedly", "error", err)
			} else {
				slog.DebugContext(ctx, "Connection read ended", "error", err)
			}
			return
		}
		conn.extendReadDeadline()

		if conn.Role() != domain.RoleProducer {
			h.relay.Reject(ctx, SourceWebSocket, reasonViewerMessage)
			slog.DebugContext(ctx, "Ignoring message from viewer")
			continue
		}
		if messageType != websocket.TextMessage {
			h.relay.Reject(ctx, SourceWebSocket, reasonBinaryFrame)
			slog.WarnContext(ctx, "Ignoring non-text frame from producer", "message_type", messageType)
			continue
		}

		// Publish logs and counts parse failures itself; the connection stays open.
		_, _ = h.relay.Publish(ctx, SourceWebSocket, data)
	}
}

func (h *Hub) teardown(ctx context.Context, conn *Connection) {
	conn.Close()
	h.registry.Unregister(conn.ID())

	lifetime := h.clock.Since(conn.OpenedAt())
	h.wsMetrics.Closed(conn.Role().String(), lifetime)
	slog.DebugContext(ctx, "Connection closed", "lifetime", lifetime, "remaining", h.registry.Len())
}

// Shutdown stops accepting connections and closes every registered one with a
// close frame carrying reason. Receive loops observe the close and unregister.
func (h *Hub) Shutdown(reason string) {
	h.shutdownReason.Store(reason)
	h.closing.Store(true)

	snapshot := h.registry.Snapshot()
	var wg sync.WaitGroup
	for _, conn := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.CloseGraceful(reason)
		}()
	}
	wg.Wait()

	slog.Info("Hub shut down", "closed_connections", len(snapshot))
}

// Registry exposes the hub's registry for read-only inspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}
