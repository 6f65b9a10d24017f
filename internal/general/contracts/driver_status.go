package contracts

import "time"

// DriverStatusMessage is published on availability changes and assignment
// binds/unbinds.
// Routing key: "driver.status.{driver_id}" on ExchangeDriverTopic.
type DriverStatusMessage struct {
	DriverID   string    `json:"driver_id"`
	Status     string    `json:"status"` // OFFLINE|ONLINE
	DeliveryID string    `json:"delivery_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Envelope
}
