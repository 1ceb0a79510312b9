package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"schedboard/internal/config"
	"schedboard/pkg/interfaces"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Clients are native apps presenting bearer tokens; origin checking
		// adds nothing here.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// authRequest is the first frame a client must send after the upgrade.
type authRequest struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Handler upgrades push-channel requests and runs the in-band
// authentication handshake before a connection reaches the registry.
type Handler struct {
	registry *Registry
	verifier interfaces.TokenVerifier
	cfg      *config.WebSocketConfig
}

// NewHandler creates a websocket handler.
func NewHandler(registry *Registry, verifier interfaces.TokenVerifier, cfg *config.WebSocketConfig) *Handler {
	return &Handler{
		registry: registry,
		verifier: verifier,
		cfg:      cfg,
	}
}

// HandleWebSocket serves the push endpoint. The socket is upgraded first,
// then the client has one auth-timeout window to present a valid session
// token as its first frame. Until that succeeds the connection never touches
// the registry; on failure the attempt is terminated without registry
// access.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, h.cfg.BufferSize, h.cfg.WriteTimeout)

	claims, err := h.awaitAuth(wsConn)
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"type": "auth_error", "message": "authentication required"})
		// Give the writer a moment to flush the rejection before closing.
		time.Sleep(50 * time.Millisecond)
		_ = conn.Close()
		return
	}

	conn.SetIdentity(claims.UserID, claims.Role)

	if err := h.registry.Attach(conn); err != nil {
		log.Printf("Failed to attach connection for user %s: %v", claims.UserID, err)
		_ = conn.Close()
		return
	}

	if err := conn.WriteJSON(map[string]string{"type": "auth_ok"}); err != nil {
		log.Printf("Failed to acknowledge auth for user %s: %v", claims.UserID, err)
	}

	log.Printf("Connection attached: user=%s role=%s", claims.UserID, claims.Role)

	go h.readLoop(conn)
}

// awaitAuth reads the first frame and validates the presented token.
func (h *Handler) awaitAuth(wsConn *websocket.Conn) (*interfaces.Claims, error) {
	if err := wsConn.SetReadDeadline(time.Now().Add(h.cfg.AuthTimeout)); err != nil {
		return nil, err
	}

	_, data, err := wsConn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var req authRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, ErrInvalidJSON
	}
	if req.Type != "auth" || req.Token == "" {
		return nil, ErrConnectionNotAuthenticated
	}

	return h.verifier.ValidateToken(req.Token)
}

// readLoop owns the connection lifecycle after attachment: ping/pong
// liveness and detection of the client going away. Clients never send
// routable traffic on the push channel, so inbound frames beyond pong
// handling are discarded. The deferred detach names this exact connection
// instance, which keeps a slow disconnect from clobbering a reconnect.
func (h *Handler) readLoop(conn *Connection) {
	defer func() {
		h.registry.Detach(conn)
		_ = conn.Close()
		log.Printf("Connection detached: user=%s", conn.UserID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error for user %s: %v", conn.UserID(), err)
			}
			return
		}
	}
}
