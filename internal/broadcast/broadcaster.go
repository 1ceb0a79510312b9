package broadcast

import (
	"log"

	"schedboard/internal/websocket"
	"schedboard/pkg/types"
)

// Broadcaster fans change events out to live connections. It reads the
// registry but never mutates the identity mapping except to detach a
// connection whose transport write failed; that connection is closed and
// left to the client's next reconnect to restore.
type Broadcaster struct {
	registry *websocket.Registry
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *websocket.Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Publish delivers an event to every registered connection, or to the
// connections of the given identity ids only. Targets with no live
// connection are skipped silently. Delivery is best-effort: a failed write
// drops that one connection and never affects delivery to the rest, and no
// error is ever returned to the caller.
//
// Per-connection ordering follows publish order because each connection's
// frames flow through one ordered send channel; no ordering is guaranteed
// across connections.
func (b *Broadcaster) Publish(event *types.ChangeEvent, targetIDs ...string) {
	var conns []*websocket.Connection

	if len(targetIDs) == 0 {
		conns = b.registry.AllConnections()
	} else {
		for _, id := range targetIDs {
			if conn, ok := b.registry.Lookup(id); ok {
				conns = append(conns, conn)
			}
		}
	}

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("Failed to deliver %s/%s event to user %s, dropping connection: %v",
				event.Type, event.Action, conn.UserID(), err)
			b.registry.Detach(conn)
			_ = conn.Close()
		}
	}
}
