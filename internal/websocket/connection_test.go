package websocket

import (
	"errors"
	"testing"
)

func TestWriteJSONDeliversToClient(t *testing.T) {
	pair := newConnPair(t)

	if err := pair.server.WriteJSON(map[string]string{"type": "hello"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var got map[string]string
	pair.readJSON(t, &got)
	if got["type"] != "hello" {
		t.Errorf("unexpected frame: %v", got)
	}
}

func TestWriteJSONPreservesOrder(t *testing.T) {
	pair := newConnPair(t)

	for i := 0; i < 10; i++ {
		if err := pair.server.WriteJSON(map[string]int{"seq": i}); err != nil {
			t.Fatalf("WriteJSON %d failed: %v", i, err)
		}
	}

	for i := 0; i < 10; i++ {
		var got map[string]int
		pair.readJSON(t, &got)
		if got["seq"] != i {
			t.Fatalf("frame %d arrived out of order: %v", i, got)
		}
	}
}

func TestWriteJSONAfterClose(t *testing.T) {
	pair := newConnPair(t)

	if err := pair.server.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pair.server.WriteJSON(map[string]string{"x": "y"}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestWriteJSONRejectsUnmarshalable(t *testing.T) {
	pair := newConnPair(t)

	if err := pair.server.WriteJSON(make(chan int)); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	pair := newConnPair(t)

	if err := pair.server.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pair.server.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestIdentitySnapshot(t *testing.T) {
	pair := newConnPair(t)

	if pair.server.IsAuthenticated() {
		t.Error("new connection must not be authenticated")
	}
	if pair.server.UserID() != "" {
		t.Error("identity must be empty before authentication")
	}

	pair.server.SetIdentity("u1", "privileged")

	if !pair.server.IsAuthenticated() {
		t.Error("connection should be authenticated")
	}
	if pair.server.UserID() != "u1" || pair.server.Role() != "privileged" {
		t.Errorf("unexpected identity: %s/%s", pair.server.UserID(), pair.server.Role())
	}
}
