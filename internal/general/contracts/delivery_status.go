package contracts

import "time"

// DeliveryStatusMessage is the customer-tracking broadcast published after a
// successful stage transition.
// Routing key: "delivery.status.{status}" on ExchangeDeliveryTopic.
//
// Only transitions from pickup arrival onward are published; earlier states
// stay private to the dispatch pipeline.
type DeliveryStatusMessage struct {
	DeliveryID     string    `json:"delivery_id"`
	Status         string    `json:"status"` // PICKUP_ARRIVED|PACKAGE_COLLECTED|IN_TRANSIT|AT_DESTINATION|DELIVERED|CANCELLED
	Timestamp      time.Time `json:"timestamp"`
	DriverID       string    `json:"driver_id,omitempty"`
	DriverLocation *GeoPoint `json:"driver_location,omitempty"`
	Envelope
}
