package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// connPair is one real websocket connection: the server side wrapped in
// Connection, and the raw client side for reading what the server pushes.
type connPair struct {
	server *Connection
	client *websocket.Conn
}

// newConnPair upgrades a real websocket through an httptest server so
// connection and registry behavior is tested against the actual transport.
func newConnPair(t *testing.T) *connPair {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	upgr := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgr.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("test upgrade failed: %v", err)
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("test dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	var raw *websocket.Conn
	select {
	case raw = <-serverConns:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
	}

	server := NewConnection(raw, 16, 500*time.Millisecond)
	t.Cleanup(func() { _ = server.Close() })

	return &connPair{server: server, client: client}
}

// readJSON reads one frame from the client side with a deadline.
func (p *connPair) readJSON(t *testing.T, v interface{}) {
	t.Helper()

	if err := p.client.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := p.client.ReadJSON(v); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
}

// attachedConn returns an authenticated, registered connection.
func attachedConn(t *testing.T, registry *Registry, userID, role string) *connPair {
	t.Helper()

	pair := newConnPair(t)
	pair.server.SetIdentity(userID, role)
	if err := registry.Attach(pair.server); err != nil {
		t.Fatalf("attach failed for %s: %v", userID, err)
	}
	return pair
}
