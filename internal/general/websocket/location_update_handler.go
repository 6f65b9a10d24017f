package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"courier-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

// wsLocationUpdate is the inbound "location_update" frame payload.
type wsLocationUpdate struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	SpeedKmh       *float64 `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64 `json:"heading_degrees,omitempty"`
}

// handleLocationUpdate forwards a device position sample to the courier
// service. Failures here never touch assignment state; the sample is dropped
// and the driver keeps working.
func (ws *WebSocket) handleLocationUpdate(ctx context.Context, conn *websocket.Conn, driverID string, data json.RawMessage) error {
	if ws.service == nil {
		return errors.New("courier service not attached")
	}

	var upd wsLocationUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		_ = ws.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad location payload"}`))
		return err
	}

	res, err := ws.service.UpdateLocation(ctx, ports.UpdateLocationInput{
		DriverID:       driverID,
		Latitude:       upd.Latitude,
		Longitude:      upd.Longitude,
		SpeedKmh:       upd.SpeedKmh,
		HeadingDegrees: upd.HeadingDegrees,
	})
	if err != nil {
		return err
	}

	ack, err := json.Marshal(map[string]any{
		"type":      "location_ack",
		"accepted":  res.Accepted,
		"published": res.Published,
		"timestamp": res.Timestamp,
	})
	if err != nil {
		return err
	}
	return ws.wsWriteMessage(conn, websocket.TextMessage, ack)
}
