package broadcast

import (
	"fmt"
	"sync"

	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/google/uuid"
)

// Registry is the set of currently open connections, keyed by connection ID.
// All methods are safe for concurrent use. The lock is never held while
// performing I/O: callers iterate a Snapshot and write outside the lock.
type Registry struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection
}

func NewRegistry() *Registry {
	return &Registry{connections: make(map[uuid.UUID]*Connection)}
}

// Register adds conn. It fails with domain.ErrAlreadyRegistered if the ID is taken.
func (r *Registry) Register(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return fmt.Errorf("register %s: %w", conn.ID(), domain.ErrAlreadyRegistered)
	}
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes id. Removing an absent ID is a no-op, so the read-failure
// and write-failure paths may both call it.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, id)
}

// Snapshot returns a point-in-time copy of the registered connections.
// Later registrations and removals do not affect the returned slice.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

func (r *Registry) Get(id uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[id]
	return conn, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Count returns the number of registered connections with the given role.
func (r *Registry) Count(role domain.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, conn := range r.connections {
		if conn.Role() == role {
			n++
		}
	}
	return n
}
