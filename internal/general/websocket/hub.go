package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"courier-dispatch/internal/domain/user"
	"courier-dispatch/internal/general/jwt"
	"courier-dispatch/internal/general/logger"
	"courier-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	readIdleWindow   = 60 * time.Second
	pingInterval     = 30 * time.Second
	authWindow       = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocket handles driver WebSocket connections with JWT auth. One
// connection per driver; a later connection for the same driver replaces the
// registry entry.
type WebSocket struct {
	logger      *logger.Logger
	jwtMgr      *jwt.Manager
	service     ports.CourierService
	writeLocks  sync.Map // key: *websocket.Conn -> *sync.Mutex
	driverConns sync.Map // key: driverID(string) -> *websocket.Conn
}

// NewWebSocket creates a WebSocket handler with JWT auth.
func NewWebSocket(logger *logger.Logger, jwtMgr *jwt.Manager) *WebSocket {
	return &WebSocket{
		logger: logger,
		jwtMgr: jwtMgr,
	}
}

// AttachService wires the courier service after construction. The hub and the
// service reference each other, so one side attaches late.
func (ws *WebSocket) AttachService(svc ports.CourierService) {
	ws.service = svc
}

// ConnectDriver handles WebSocket connections from drivers with JWT auth.
func (ws *WebSocket) ConnectDriver(w http.ResponseWriter, r *http.Request) {
	// 1) Upgrade HTTP -> WS
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	// Teardown order (LIFO on return):
	defer conn.Close()               // close the socket last
	defer ws.writeLocks.Delete(conn) // forget per-connection mutex (idempotent)

	// 2) Set auth deadline
	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(authWindow)); err != nil {
		ws.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		ws.sendAuthError(conn, "internal server error")
		return
	}

	// 3) First frame must be the auth message
	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			ws.logger.Error(r.Context(), "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			ws.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		}
		ws.sendAuthError(conn, "authentication timeout: please send auth message within 5 seconds")
		return
	}

	if msgType != websocket.TextMessage {
		ws.logger.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		ws.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(firstFrame, ws.jwtMgr, user.RoleDriver)
	if err != nil {
		ws.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		ws.sendAuthError(conn, "authentication failed: invalid token")
		return
	}

	// 4) Path param must match the subject in claims
	if drvID := r.PathValue("driver_id"); drvID != "" && drvID != res.Claims.Subject {
		ws.logger.Error(r.Context(), "ws_auth_failed", "Driver ID mismatch", nil, map[string]any{
			"path_driver_id": drvID,
			"token_subject":  res.Claims.Subject,
		})
		ws.sendAuthError(conn, "driver ID mismatch")
		return
	}
	driverID := res.Claims.Subject

	// 5) Send authentication success message
	if err := ws.sendAuthSuccess(conn, driverID); err != nil {
		ws.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	ws.logger.Info(r.Context(), "ws_connected", "Driver WebSocket connected",
		map[string]any{"driver_id": driverID})

	// 6) Reset read deadline after auth
	_ = conn.SetReadDeadline(time.Now().Add(readIdleWindow))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdleWindow))
	})

	// 7) Ping loop using the per-connection writer lock
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			mu := ws.lockOf(conn)
			mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			mu.Unlock()
			if err != nil {
				// Close socket to unblock reader; goroutine exits.
				_ = conn.Close()
				ws.logger.Error(r.Context(), "ws_ping_failed", "Failed to send ping", err, nil)
				return
			}
		}
	}()

	// 8) Register this driver for outbound pushes; unregister on exit
	ws.RegisterDriverConn(driverID, conn)
	defer ws.RemoveDriverConn(driverID)

	// 9) Read loop: route messages
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readIdleWindow))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ws.logger.Error(r.Context(), "ws_unexpected_close", "Driver connection closed unexpectedly", err, map[string]any{
					"driver_id": driverID,
				})
				ws.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				ws.logger.Info(r.Context(), "ws_connection_closed", "Driver connection closed normally", map[string]any{
					"driver_id": driverID,
				})
				ws.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
			}
			break
		}

		// Minimal envelope
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}

		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = ws.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad json"}`))
			continue
		}

		switch msg.Type {
		case "location_update":
			if err := ws.handleLocationUpdate(r.Context(), conn, driverID, msg.Data); err != nil {
				ws.logger.Error(r.Context(), "driver_ws_message_failed", "location update handling failed", err, map[string]any{
					"driver_id": driverID,
				})
			}

		default:
			_ = ws.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"unknown message type"}`))
		}
	}
}

// sendAuthError sends authentication error message to client
func (ws *WebSocket) sendAuthError(conn *websocket.Conn, message string) error {
	errorMsg := map[string]interface{}{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	}
	msgBytes, err := json.Marshal(errorMsg)
	if err != nil {
		return err
	}
	return ws.wsWriteMessage(conn, websocket.TextMessage, msgBytes)
}

// sendAuthSuccess sends authentication success message to client
func (ws *WebSocket) sendAuthSuccess(conn *websocket.Conn, driverID string) error {
	successMsg := map[string]interface{}{
		"type":      "auth_success",
		"message":   "Authentication successful",
		"success":   true,
		"driver_id": driverID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	msgBytes, err := json.Marshal(successMsg)
	if err != nil {
		return err
	}
	return ws.wsWriteMessage(conn, websocket.TextMessage, msgBytes)
}
