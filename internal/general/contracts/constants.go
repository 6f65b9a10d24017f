package contracts

// Exchanges
const (
	ExchangeDeliveryTopic  = "delivery_topic"
	ExchangeDriverTopic    = "driver_topic"
	ExchangeLocationFanout = "location_fanout"
)

// Queues
const (
	QueueOfferInbox      = "delivery_offers"
	QueueDeliveryStatus  = "delivery_status"
	QueueDriverStatus    = "driver_status"
	QueueLocationUpdates = "location_updates"
)

// Routing patterns
const (
	RouteOfferPrefix          = "delivery.offer."  // {driver_id}
	RouteDeliveryStatusPrefix = "delivery.status." // {status}
	RouteDriverStatusPrefix   = "driver.status."   // {driver_id}
)
