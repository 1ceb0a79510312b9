package websocket

import (
	"log"
	"sync"
)

// Registry maps identity ids to live connections. At most one connection is
// registered per identity: attaching for an identity that already has a
// connection supersedes the old one. This is the only state in the system
// mutated from multiple goroutines; every access goes through the mutex.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection // identity id -> connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// Attach registers a connection under its identity id, replacing any prior
// registration for that identity. The superseded connection is closed
// asynchronously so its own disconnect handler runs without holding the
// registry lock.
func (r *Registry) Attach(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	userID := conn.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.connections[userID]; ok && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("Failed to close superseded connection for user %s: %v", userID, err)
			}
		}()
	}

	r.connections[userID] = conn
	return nil
}

// Detach removes the registry entry for the connection's identity, but only
// if the registry still points at this exact connection instance. A stale
// detach from a superseded connection's cleanup is a no-op, so a slow
// disconnect handler can never undo a fresh reconnect.
func (r *Registry) Detach(conn *Connection) {
	if conn == nil {
		return
	}

	userID := conn.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, ok := r.connections[userID]; ok && registered == conn {
		delete(r.connections, userID)
	}
}

// Lookup returns the current connection for an identity.
func (r *Registry) Lookup(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[userID]
	return conn, ok
}

// AllConnections returns a snapshot of every registered connection, used for
// global broadcast. Iteration order is unspecified.
func (r *Registry) AllConnections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	return connections
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	privileged := 0
	for _, conn := range r.connections {
		if conn.Role() == "privileged" {
			privileged++
		}
	}

	return map[string]int{
		"total_connections":      len(r.connections),
		"privileged_connections": privileged,
	}
}
