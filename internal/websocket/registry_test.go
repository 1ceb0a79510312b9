package websocket

import (
	"errors"
	"testing"
	"time"
)

func TestAttachRequiresAuthentication(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Attach(nil); !errors.Is(err, ErrNilConnection) {
		t.Errorf("expected ErrNilConnection, got %v", err)
	}

	pair := newConnPair(t)
	if err := registry.Attach(pair.server); !errors.Is(err, ErrConnectionNotAuthenticated) {
		t.Errorf("expected ErrConnectionNotAuthenticated, got %v", err)
	}
}

func TestAttachAndLookup(t *testing.T) {
	registry := NewRegistry()
	pair := attachedConn(t, registry, "u1", "standard")

	conn, ok := registry.Lookup("u1")
	if !ok {
		t.Fatal("connection not found after attach")
	}
	if conn != pair.server {
		t.Error("lookup returned a different connection instance")
	}
	if _, ok := registry.Lookup("u2"); ok {
		t.Error("lookup for unknown identity should miss")
	}
}

func TestAttachSupersedesPriorConnection(t *testing.T) {
	registry := NewRegistry()

	first := attachedConn(t, registry, "u1", "standard")
	second := attachedConn(t, registry, "u1", "standard")

	// Exactly one registry entry, pointing at the second connection.
	conns := registry.AllConnections()
	if len(conns) != 1 {
		t.Fatalf("expected 1 registered connection, got %d", len(conns))
	}
	if conns[0] != second.server {
		t.Error("registry should point at the superseding connection")
	}

	// The superseded connection is closed shortly after.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := first.server.WriteJSON(map[string]string{"probe": "x"}); errors.Is(err, ErrConnectionClosed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("superseded connection was never closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStaleDetachIsNoOp(t *testing.T) {
	registry := NewRegistry()

	first := attachedConn(t, registry, "u1", "standard")
	second := attachedConn(t, registry, "u1", "standard")

	// A late disconnect handler for the superseded connection must not
	// remove the fresh registration.
	registry.Detach(first.server)

	conn, ok := registry.Lookup("u1")
	if !ok || conn != second.server {
		t.Error("stale detach clobbered the newer registration")
	}

	registry.Detach(second.server)
	if _, ok := registry.Lookup("u1"); ok {
		t.Error("matching detach should remove the entry")
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	pair := attachedConn(t, registry, "u1", "standard")

	registry.Detach(pair.server)
	registry.Detach(pair.server) // second call is a no-op

	if len(registry.AllConnections()) != 0 {
		t.Error("registry should be empty")
	}
}

func TestAllConnectionsAndStats(t *testing.T) {
	registry := NewRegistry()
	attachedConn(t, registry, "u1", "standard")
	attachedConn(t, registry, "u2", "privileged")
	attachedConn(t, registry, "u3", "standard")

	if n := len(registry.AllConnections()); n != 3 {
		t.Errorf("expected 3 connections, got %d", n)
	}

	stats := registry.Stats()
	if stats["total_connections"] != 3 {
		t.Errorf("expected total 3, got %d", stats["total_connections"])
	}
	if stats["privileged_connections"] != 1 {
		t.Errorf("expected 1 privileged, got %d", stats["privileged_connections"])
	}
}

func TestConcurrentRegistryAccess(t *testing.T) {
	registry := NewRegistry()

	pairs := make([]*connPair, 8)
	for i := range pairs {
		pairs[i] = newConnPair(t)
		pairs[i].server.SetIdentity("user", "standard")
	}

	// Concurrent attach/detach/lookup for one identity must leave the map
	// consistent: zero or one entry.
	done := make(chan struct{})
	for _, p := range pairs {
		go func(p *connPair) {
			defer func() { done <- struct{}{} }()
			_ = registry.Attach(p.server)
			registry.Lookup("user")
			registry.Detach(p.server)
		}(p)
	}
	for range pairs {
		<-done
	}

	if n := len(registry.AllConnections()); n > 1 {
		t.Errorf("registry corrupted: %d entries for one identity", n)
	}
}
