package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/amiralifaghihirad/Project-ECM/internal/adapter/metrics"
	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// Connection is one live WebSocket session with a producer or a viewer.
//
// Outbound messages go through a bounded queue drained by a dedicated writer
// goroutine, so Enqueue never blocks. The connection is exclusively owned by
// the goroutine that serves it; the registry only holds a pointer for lookup
// and fan-out.
type Connection struct {
	id          uuid.UUID
	role        domain.Role
	remoteAddr  string
	connection  *websocket.Conn
	clock       clockwork.Clock
	wsMetrics   *metrics.WebSocketMetrics
	openedAt    time.Time
	sendChannel chan []byte
	doneChannel chan struct{}
	alive       atomic.Bool
	drops       atomic.Int64
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newConnection(id uuid.UUID, role domain.Role, remoteAddr string, connection *websocket.Conn, queueSize int, clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics) *Connection {
	c := &Connection{
		id:          id,
		role:        role,
		remoteAddr:  remoteAddr,
		connection:  connection,
		clock:       clock,
		wsMetrics:   wsMetrics,
		openedAt:    clock.Now(),
		sendChannel: make(chan []byte, queueSize),
		doneChannel: make(chan struct{}),
	}
	c.alive.Store(true)
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Connection) ID() uuid.UUID       { return c.id }
func (c *Connection) Role() domain.Role   { return c.role }
func (c *Connection) RemoteAddr() string  { return c.remoteAddr }
func (c *Connection) OpenedAt() time.Time { return c.openedAt }

// Alive reports whether the connection can still accept outbound messages.
func (c *Connection) Alive() bool {
	return c.alive.Load()
}

// ConsecutiveDrops returns how many enqueues in a row were rejected because the queue was full.
func (c *Connection) ConsecutiveDrops() int {
	return int(c.drops.Load())
}

// Enqueue hands msg to the writer goroutine without blocking.
// It returns domain.ErrQueueFull when the bounded queue is saturated and
// domain.ErrConnectionClosed once the connection has been torn down.
func (c *Connection) Enqueue(msg []byte) error {
	if !c.alive.Load() {
		return domain.ErrConnectionClosed
	}

	select {
	case <-c.doneChannel:
		return domain.ErrConnectionClosed
	case c.sendChannel <- msg:
		c.drops.Store(0)
		return nil
	default:
		c.drops.Add(1)
		return domain.ErrQueueFull
	}
}

func (c *Connection) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendChannel:
			start := c.clock.Now()
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Abort()
				return
			}
			c.wsMetrics.Sent(c.clock.Since(start))
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.wsMetrics.PingFailed()
				c.Abort()
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

// Abort marks the connection dead and closes the socket without waiting for
// the writer. The goroutine serving the connection observes the failed read
// and completes the teardown. Safe to call from any goroutine, including the writer.
func (c *Connection) Abort() {
	if c.alive.Swap(false) {
		_ = c.connection.Close()
	}
}

// Close tears the connection down and waits for the writer goroutine to exit.
// Idempotent. Must not be called from the writer goroutine.
func (c *Connection) Close() {
	c.stopOnce.Do(func() {
		c.alive.Store(false)
		close(c.doneChannel)
		_ = c.connection.Close()
	})
	c.wg.Wait()
}

// CloseGraceful sends a close frame with reason before closing.
func (c *Connection) CloseGraceful(reason string) {
	c.stopOnce.Do(func() {
		c.alive.Store(false)

		// The writer must exit before the close frame is written: gorilla
		// connections support only one concurrent writer.
		close(c.doneChannel)
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
		c.updateWriteDeadline()
		_ = c.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.connection.Close()
	})
	c.wg.Wait()
}

func (c *Connection) configurePongHandler() {
	c.extendReadDeadline()
	c.connection.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
}

// Socket deadlines are compared against the OS clock, so they use wall time
// rather than the injected clock.
func (c *Connection) updateWriteDeadline() {
	_ = c.connection.SetWriteDeadline(time.Now().Add(writeDeadline))
}

func (c *Connection) extendReadDeadline() {
	_ = c.connection.SetReadDeadline(time.Now().Add(pongDeadline))
}
