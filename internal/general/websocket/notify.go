package websocket

import (
	"time"

	"courier-dispatch/internal/general/contracts"
)

// NotifyOffer pushes a delivery offer to the driver app. The caller keeps
// local offer state regardless of push success; a driver on a flaky socket
// can still accept over HTTP.
func (ws *WebSocket) NotifyOffer(driverID string, offer contracts.WSDriverOffer) error {
	offer.Type = "delivery_offer"
	return ws.SendToDriver(driverID, offer)
}

// NotifyDeliveryStatus pushes a stage change of the active delivery.
func (ws *WebSocket) NotifyDeliveryStatus(driverID, deliveryID, status string) error {
	return ws.SendToDriver(driverID, contracts.WSDriverDeliveryStatus{
		Type:       "delivery_status_update",
		DeliveryID: deliveryID,
		Status:     status,
		Timestamp:  time.Now().UTC(),
	})
}

// NotifyCancellation pushes the one-time cancellation notice for the active
// delivery.
func (ws *WebSocket) NotifyCancellation(driverID, deliveryID, reason string) error {
	return ws.SendToDriver(driverID, contracts.WSDriverCancellation{
		Type:       "delivery_cancelled",
		DeliveryID: deliveryID,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	})
}
