// Package broadcast implements the telemetry relay core: the connection
// registry, the broadcast relay and the per-connection lifecycle.
//
// Each connection has a receive loop (the goroutine serving it) and a writer
// goroutine draining a bounded queue. The registry is the only shared mutable
// state and is guarded by a RWMutex that is never held across I/O. Broadcast
// enqueues without blocking and drops a reading for any viewer whose queue is full.
package broadcast
