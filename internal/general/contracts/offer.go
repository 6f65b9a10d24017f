package contracts

// OfferMessage is an inbound delivery offer relayed to one driver's inbox.
// Routing key: "delivery.offer.{driver_id}" on ExchangeDeliveryTopic.
//
// AssignmentSource distinguishes competitive marketplace offers (claimed via a
// conditional write) from dispatcher-assigned jobs that arrive pre-bound.
type OfferMessage struct {
	DeliveryID       string     `json:"delivery_id"`
	DriverID         string     `json:"driver_id"`
	AssignmentSource string     `json:"assignment_source"` // MARKETPLACE|DISPATCHER
	Pickup           GeoPoint   `json:"pickup_location"`
	Dropoff          GeoPoint   `json:"dropoff_location"`
	Stops            []StopInfo `json:"stops,omitempty"`
	Envelope
}

// StopInfo mirrors one ordered waypoint of a multi-stop delivery.
type StopInfo struct {
	Position int      `json:"position"`
	Kind     string   `json:"kind"` // PICKUP|DROPOFF
	Point    GeoPoint `json:"point"`
	Status   string   `json:"status"`
}
