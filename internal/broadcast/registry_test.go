package broadcast

import (
	"sync"
	"testing"

	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bareConnection is enough for registry bookkeeping; it has no socket.
func bareConnection(role domain.Role) *Connection {
	c := &Connection{id: uuid.New(), role: role}
	c.alive.Store(true)
	return c
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	conn := bareConnection(domain.RoleViewer)

	require.NoError(t, r.Register(conn))

	got, ok := r.Get(conn.ID())
	require.True(t, ok)
	assert.Same(t, conn, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	conn := bareConnection(domain.RoleViewer)
	require.NoError(t, r.Register(conn))

	err := r.Register(conn)
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
	assert.Equal(t, 1, r.Len(), "registry unchanged after a duplicate")
}

func TestRegistry_UnregisterAbsentIsNoop(t *testing.T) {
	r := NewRegistry()
	conn := bareConnection(domain.RoleViewer)
	require.NoError(t, r.Register(conn))

	r.Unregister(uuid.New())
	assert.Equal(t, 1, r.Len())

	r.Unregister(conn.ID())
	r.Unregister(conn.ID())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_SnapshotIsStable(t *testing.T) {
	r := NewRegistry()
	a := bareConnection(domain.RoleViewer)
	b := bareConnection(domain.RoleProducer)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	snapshot := r.Snapshot()

	r.Unregister(a.ID())
	require.NoError(t, r.Register(bareConnection(domain.RoleViewer)))

	assert.ElementsMatch(t, []*Connection{a, b}, snapshot)
}

func TestRegistry_Count(t *testing.T) {
	r := NewRegistry()
	for range 3 {
		require.NoError(t, r.Register(bareConnection(domain.RoleViewer)))
	}
	require.NoError(t, r.Register(bareConnection(domain.RoleProducer)))

	assert.Equal(t, 3, r.Count(domain.RoleViewer))
	assert.Equal(t, 1, r.Count(domain.RoleProducer))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	const workers = 50

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := bareConnection(domain.RoleViewer)
			if err := r.Register(conn); err != nil {
				t.Errorf("register: %v", err)
				return
			}
			_ = r.Snapshot()
			_ = r.Count(domain.RoleViewer)
			r.Unregister(conn.ID())
		}()
	}

	// Snapshots race with the writers above; each must be internally consistent.
	for range workers {
		for _, conn := range r.Snapshot() {
			assert.NotNil(t, conn)
		}
	}

	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
