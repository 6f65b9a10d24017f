package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/general/contracts"
	"courier-dispatch/internal/ports"

	"github.com/google/uuid"
)

const producerName = "courier-service"

// generateCorrelationID creates a correlation ID for tracing requests.
func generateCorrelationID() string {
	return "req_" + uuid.NewString()
}

// envelope stamps the common message headers.
func envelope(corrID string) contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: corrID,
		Producer:      producerName,
		SentAt:        time.Now().UTC(),
	}
}

// domainRejection reports whether err is a synchronous invariant rejection
// rather than a transport failure. Rejections are never retried.
func domainRejection(err error) bool {
	for _, sentinel := range []error{
		ports.ErrOfferNoLongerAvailable,
		ports.ErrToggleInProgress,
		ports.ErrActiveDelivery,
		ports.ErrNoActiveDelivery,
		ports.ErrBackwardTransition,
		ports.ErrInvalidTransition,
		ports.ErrNotAssignedToDriver,
		ports.ErrDriverOffline,
		ports.ErrOfferNotFound,
		delivery.ErrTerminal,
		delivery.ErrInvalidStopTransition,
		delivery.ErrStopNotFound,
		driver.ErrHasActiveDelivery,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// withTxRetry runs fn in a transaction with the bounded transport retry.
func (service *courierService) withTxRetry(ctx context.Context, fn func(context.Context) error) error {
	return service.retry.Do(ctx, func(err error) bool { return !domainRejection(err) }, func(ctx context.Context) error {
		return service.uow.WithinTx(ctx, fn)
	})
}

// publishDriverStatus sends an availability/assignment update to the
// driver_topic exchange using routing key "driver.status.{driver_id}".
func (service *courierService) publishDriverStatus(ctx context.Context, msg contracts.DriverStatusMessage) error {
	routingKey := contracts.RouteDriverStatusPrefix + msg.DriverID

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	err = service.retry.Do(ctx, nil, func(context.Context) error {
		return service.pub.Publish(contracts.ExchangeDriverTopic, routingKey, body)
	})
	if err != nil {
		return err
	}

	service.logger.Info(ctx, "driver_status_published", "Published driver status to RabbitMQ", map[string]any{
		"routing_key": routingKey,
		"driver_id":   msg.DriverID,
		"status":      msg.Status,
		"delivery_id": msg.DeliveryID,
	})
	return nil
}

// publishDeliveryStatus sends a customer-tracking broadcast to the
// delivery_topic exchange using routing key "delivery.status.{status}".
func (service *courierService) publishDeliveryStatus(ctx context.Context, msg contracts.DeliveryStatusMessage) error {
	routingKey := contracts.RouteDeliveryStatusPrefix + msg.Status

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	err = service.retry.Do(ctx, nil, func(context.Context) error {
		return service.pub.Publish(contracts.ExchangeDeliveryTopic, routingKey, body)
	})
	if err != nil {
		return err
	}

	service.logger.Info(ctx, "delivery_status_published", "Published delivery status to RabbitMQ", map[string]any{
		"routing_key": routingKey,
		"delivery_id": msg.DeliveryID,
		"status":      msg.Status,
	})
	return nil
}

// broadcastLocationUpdate publishes to the location fanout exchange.
// Fanout ignores routing keys; pass an empty routing key.
func (service *courierService) broadcastLocationUpdate(ctx context.Context, msg contracts.LocationUpdateMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := service.pub.Publish(contracts.ExchangeLocationFanout, "", body); err != nil {
		return err
	}

	service.logger.Debug(ctx, "location_update_published", "Broadcasted location update to RabbitMQ", map[string]any{
		"driver_id":   msg.DriverID,
		"delivery_id": msg.DeliveryID,
		"lat":         msg.Location.Lat,
		"lng":         msg.Location.Lng,
	})
	return nil
}

// lastKnownLocation reads the cached position, swallowing cache errors.
// Broadcasts go out without coordinates rather than fail.
func (service *courierService) lastKnownLocation(ctx context.Context, driverID string) *contracts.GeoPoint {
	loc, err := service.locations.GetLast(ctx, driverID)
	if err != nil || loc == nil {
		return nil
	}
	return &contracts.GeoPoint{Lat: loc.Lat, Lng: loc.Lng}
}

// validCoordinates bounds-checks a latitude/longitude pair.
func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
