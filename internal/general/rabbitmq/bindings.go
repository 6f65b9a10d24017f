package rabbitmq

import (
	"fmt"

	"courier-dispatch/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

func declareTopology(ch *amqp.Channel) error {
	// 1. Exchanges
	exchanges := []struct {
		name string
		kind string
	}{
		{contracts.ExchangeDeliveryTopic, "topic"},
		{contracts.ExchangeDriverTopic, "topic"},
		{contracts.ExchangeLocationFanout, "fanout"},
	}

	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	// 2. Queues
	queues := []string{
		contracts.QueueOfferInbox,
		contracts.QueueDeliveryStatus,
		contracts.QueueDriverStatus,
		contracts.QueueLocationUpdates,
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	// 3. Bindings
	bindings := []struct {
		queue      string
		exchange   string
		routingKey string
	}{
		{contracts.QueueOfferInbox, contracts.ExchangeDeliveryTopic, contracts.RouteOfferPrefix + "*"},
		{contracts.QueueDeliveryStatus, contracts.ExchangeDeliveryTopic, contracts.RouteDeliveryStatusPrefix + "*"},
		{contracts.QueueDriverStatus, contracts.ExchangeDriverTopic, contracts.RouteDriverStatusPrefix + "*"},
		{contracts.QueueLocationUpdates, contracts.ExchangeLocationFanout, ""},
	}

	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
