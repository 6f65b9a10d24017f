package contracts

import "time"

// LocationUpdateMessage is broadcast on the location fanout exchange.
// Position never touches the assignment store; this message is the only
// carrier of continuous coordinates.
type LocationUpdateMessage struct {
	DriverID       string    `json:"driver_id"`
	DeliveryID     string    `json:"delivery_id,omitempty"`
	Location       GeoPoint  `json:"location"`
	SpeedKMH       float64   `json:"speed_kmh,omitempty"`
	HeadingDegrees float64   `json:"heading_degrees,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Envelope
}
