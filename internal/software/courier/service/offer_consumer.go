package service

import (
	"context"
	"encoding/json"
	"time"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/general/contracts"
)

const offerConsumerTag = "courier-offer-consumer"

// runOfferConsumer consumes the per-driver offer inbox queue until ctx is
// done, reconnecting with backoff when the channel drops.
func (service *courierService) runOfferConsumer(ctx context.Context) {
	backoff := time.Second
	for {
		err := service.consumer.ConsumeJSON(ctx, contracts.QueueOfferInbox, offerConsumerTag, service.prefetch, service.handleOfferMessage)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			service.logger.Error(ctx, "offer_consumer_stopped", "Offer consumer stopped, restarting", err, map[string]any{
				"backoff": backoff.String(),
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// handleOfferMessage routes one relayed offer into the target driver's
// session. Offers for offline drivers are dropped; the relayer's timeout
// re-offers the job elsewhere.
func (service *courierService) handleOfferMessage(ctx context.Context, body []byte) error {
	var msg contracts.OfferMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		service.logger.Error(ctx, "offer_decode_failed", "Dropping malformed offer message", err, nil)
		// Malformed payloads are poison; ack by returning nil after logging
		// would re-deliver forever otherwise.
		return nil
	}

	source, err := delivery.ParseAssignmentSource(msg.AssignmentSource)
	if err != nil {
		service.logger.Error(ctx, "offer_decode_failed", "Dropping offer with unknown assignment source", err, map[string]any{
			"delivery_id": msg.DeliveryID,
		})
		return nil
	}

	ctx = service.logger.WithDeliveryID(ctx, msg.DeliveryID)
	s := service.sessionFor(msg.DriverID)

	return s.post(func(loopCtx context.Context) {
		if err := service.ensureLoaded(loopCtx, s); err != nil {
			service.logger.Error(loopCtx, "offer_session_load_failed", "Failed to load session for offer", err, map[string]any{
				"driver_id": msg.DriverID,
			})
			return
		}

		// Dispatcher jobs arrive pre-bound in the store; there is nothing
		// to accept, so reconcile the binding right away.
		if source == delivery.SourceDispatcher {
			service.adoptDispatcherAssignment(loopCtx, s, msg)
			return
		}

		if s.availability != driver.AvailabilityOnline {
			service.logger.Info(loopCtx, "offer_dropped", "Dropped offer for offline driver", map[string]any{
				"driver_id": msg.DriverID,
			})
			return
		}

		offerID := "offer_" + generateCorrelationID()
		s.offers[msg.DeliveryID] = pendingOffer{
			OfferID:  offerID,
			Source:   source,
			Received: time.Now().UTC(),
			Msg:      msg,
		}

		push := contracts.WSDriverOffer{
			OfferID:          offerID,
			DeliveryID:       msg.DeliveryID,
			AssignmentSource: source.String(),
			Pickup:           msg.Pickup,
			Dropoff:          msg.Dropoff,
			Stops:            msg.Stops,
			Envelope:         envelope(msg.CorrelationID),
		}
		if err := service.notifier.NotifyOffer(msg.DriverID, push); err != nil {
			// Offer stays in the inbox; the driver can still accept over HTTP.
			service.logger.Debug(loopCtx, "offer_push_skipped", "Driver socket not reachable for offer push", map[string]any{
				"driver_id": msg.DriverID,
			})
		}

		service.logger.Info(loopCtx, "offer_received", "Offer routed to driver session", map[string]any{
			"driver_id": msg.DriverID,
			"offer_id":  offerID,
			"source":    source.String(),
		})
	})
}

// adoptDispatcherAssignment verifies a dispatcher-assigned job against the
// store and binds it into the session. The store row is authoritative; a
// message whose binding does not match is ignored.
func (service *courierService) adoptDispatcherAssignment(ctx context.Context, s *session, msg contracts.OfferMessage) {
	var d *delivery.Delivery
	err := service.withTxRetry(ctx, func(txCtx context.Context) error {
		var err error
		d, err = service.deliveries.GetByID(txCtx, msg.DeliveryID)
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "dispatcher_assignment_load_failed", "Failed to load dispatcher-assigned delivery", err, map[string]any{
			"driver_id": s.driverID,
		})
		return
	}

	if d.Status != delivery.StatusAssigned || !d.AssignedTo(s.driverID) {
		service.logger.Info(ctx, "dispatcher_assignment_ignored", "Dispatcher assignment does not match the store row", map[string]any{
			"driver_id": s.driverID,
			"status":    d.Status.String(),
		})
		return
	}

	if s.activeDeliveryID != nil && *s.activeDeliveryID != d.ID {
		service.logger.Error(ctx, "dispatcher_assignment_conflict", "Driver already bound to another delivery", nil, map[string]any{
			"driver_id":  s.driverID,
			"active_id":  *s.activeDeliveryID,
			"offered_id": d.ID,
		})
		return
	}

	err = service.withTxRetry(ctx, func(txCtx context.Context) error {
		return service.drivers.SetActiveDelivery(txCtx, s.driverID, &d.ID)
	})
	if err != nil {
		service.logger.Error(ctx, "dispatcher_assignment_bind_failed", "Failed to persist dispatcher assignment binding", err, map[string]any{
			"driver_id": s.driverID,
		})
		return
	}

	id := d.ID
	s.activeDeliveryID = &id
	delete(s.offers, id)

	if err := service.notifier.NotifyDeliveryStatus(s.driverID, id, d.Status.String()); err != nil {
		// The binding survives; the driver app picks it up on refresh.
		service.logger.Debug(ctx, "dispatcher_assignment_push_skipped", "Driver socket not reachable for assignment push", map[string]any{
			"driver_id": s.driverID,
		})
	}

	service.logger.Info(ctx, "dispatcher_assignment_adopted", "Dispatcher-assigned delivery bound to driver", map[string]any{
		"driver_id": s.driverID,
	})
}
