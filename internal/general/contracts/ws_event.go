package contracts

import "time"

// WSDriverOffer mirrors "delivery_offer" pushed to the driver app.
type WSDriverOffer struct {
	Type             string     `json:"type"` // "delivery_offer"
	OfferID          string     `json:"offer_id"`
	DeliveryID       string     `json:"delivery_id"`
	AssignmentSource string     `json:"assignment_source"`
	Pickup           GeoPoint   `json:"pickup_location"`
	Dropoff          GeoPoint   `json:"dropoff_location"`
	Stops            []StopInfo `json:"stops,omitempty"`
	Envelope
}

// WSDriverDeliveryStatus mirrors "delivery_status_update" pushed to the driver app.
type WSDriverDeliveryStatus struct {
	Type       string    `json:"type"` // "delivery_status_update"
	DeliveryID string    `json:"delivery_id"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Envelope
}

// WSDriverCancellation is the one-time notice pushed when the active delivery
// is cancelled externally.
type WSDriverCancellation struct {
	Type       string    `json:"type"` // "delivery_cancelled"
	DeliveryID string    `json:"delivery_id"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Envelope
}
