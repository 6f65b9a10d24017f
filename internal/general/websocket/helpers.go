package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteClose sends a close control frame with the given code and reason.
func (ws *WebSocket) wsWriteClose(conn *websocket.Conn, code int, reason string) {
	mu := ws.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
	ws.writeLocks.Delete(conn)
}

// wsWriteMessage sets a short write deadline and writes a message.
func (ws *WebSocket) wsWriteMessage(conn *websocket.Conn, mt int, payload []byte) error {
	mu := ws.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(mt, payload)
}

// lockOf returns the mutex for a specific connection
func (ws *WebSocket) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := ws.writeLocks.Load(conn); ok {
		if mu, ok := v.(*sync.Mutex); ok && mu != nil {
			return mu
		}
	}
	mu := &sync.Mutex{}
	actual, _ := ws.writeLocks.LoadOrStore(conn, mu)
	return actual.(*sync.Mutex)
}

// SendToDriver marshals msg and pushes it to the driver's connection.
func (ws *WebSocket) SendToDriver(driverID string, msg interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	conn, ok := ws.GetDriverConn(driverID)
	if !ok {
		return fmt.Errorf("driver %s not connected", driverID)
	}

	return ws.wsWriteMessage(conn, websocket.TextMessage, payload)
}

// IsDriverConnected checks if a driver is currently connected via WebSocket
func (ws *WebSocket) IsDriverConnected(driverID string) bool {
	conn, ok := ws.GetDriverConn(driverID)
	return ok && conn != nil
}

// RegisterDriverConn stores the driver's connection for outbound pushes.
func (ws *WebSocket) RegisterDriverConn(driverID string, conn *websocket.Conn) {
	ws.driverConns.Store(driverID, conn)
}

// GetDriverConn returns the driver's registered connection, if any.
func (ws *WebSocket) GetDriverConn(driverID string) (*websocket.Conn, bool) {
	v, ok := ws.driverConns.Load(driverID)
	if !ok {
		return nil, false
	}
	conn, ok := v.(*websocket.Conn)
	return conn, ok
}

// RemoveDriverConn drops the driver's registry entry.
func (ws *WebSocket) RemoveDriverConn(driverID string) {
	ws.driverConns.Delete(driverID)
	ws.logger.Info(context.Background(), "driver_ws_removed", "Driver WebSocket connection removed",
		map[string]any{"driver_id": driverID})
}
