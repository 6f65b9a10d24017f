package service

import (
	"context"
	"time"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/general/contracts"
	"courier-dispatch/internal/ports"
)

// AcceptOffer claims the delivery for the driver. The claim is a conditional
// write keyed on the expected prior status, so two drivers racing for the same
// marketplace job resolve at the store: exactly one sees the row transition,
// the other gets the stale-offer outcome with no error.
func (service *courierService) AcceptOffer(ctx context.Context, in ports.AcceptOfferInput) (ports.AcceptOfferResult, error) {
	var out ports.AcceptOfferResult
	corrID := generateCorrelationID()
	ctx = service.logger.WithDeliveryID(ctx, in.DeliveryID)

	s := service.sessionFor(in.DriverID)
	var applied bool

	err := service.call(ctx, s, service.cfg.AcceptTimeout(), func(loopCtx context.Context) error {
		if err := service.ensureLoaded(loopCtx, s); err != nil {
			return err
		}

		// Re-accept of the already-claimed job is a no-op, whether or not
		// the offer still sits in the inbox.
		if s.activeDeliveryID != nil && *s.activeDeliveryID == in.DeliveryID {
			delete(s.offers, in.DeliveryID)
			applied = true
			out = ports.AcceptOfferResult{
				Applied:    true,
				DeliveryID: in.DeliveryID,
				Status:     delivery.StatusAssigned.String(),
				Message:    "Delivery is already assigned to you",
			}
			return nil
		}

		if _, ok := s.offers[in.DeliveryID]; !ok {
			return ports.ErrOfferNotFound
		}

		if s.availability != driver.AvailabilityOnline {
			return ports.ErrDriverOffline
		}

		// At most one assignment per driver; the entity guard rejects a
		// second binding.
		d := s.entity()
		if err := d.BindActiveDelivery(in.DeliveryID); err != nil {
			return ports.ErrActiveDelivery
		}

		err := service.withTxRetry(loopCtx, func(txCtx context.Context) error {
			claimed, err := service.claim(txCtx, in.DriverID, in.DeliveryID)
			if err != nil {
				return err
			}
			if !claimed {
				return ports.ErrOfferNoLongerAvailable
			}
			return service.drivers.SetActiveDelivery(txCtx, in.DriverID, &in.DeliveryID)
		})

		// Stale offer: the job was taken or cancelled. Clear local state and
		// report the outcome without an error.
		if err == ports.ErrOfferNoLongerAvailable {
			delete(s.offers, in.DeliveryID)
			out = ports.AcceptOfferResult{
				Applied:    false,
				DeliveryID: in.DeliveryID,
				Message:    "Offer is no longer available",
			}
			return nil
		}
		if err != nil {
			return err
		}

		delete(s.offers, in.DeliveryID)
		s.applyEntity(d)
		applied = true

		out = ports.AcceptOfferResult{
			Applied:    true,
			DeliveryID: in.DeliveryID,
			Status:     delivery.StatusAssigned.String(),
			Message:    "Delivery assigned",
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "offer_accept_failed", "Failed to accept delivery offer", err, map[string]any{
			"driver_id":  in.DriverID,
			"request_id": corrID,
		})
		return ports.AcceptOfferResult{}, err
	}

	if applied {
		statusMsg := contracts.DriverStatusMessage{
			DriverID:   in.DriverID,
			Status:     driver.AvailabilityOnline.String(),
			DeliveryID: in.DeliveryID,
			Timestamp:  time.Now().UTC(),
			Envelope:   envelope(corrID),
		}
		if err := service.publishDriverStatus(ctx, statusMsg); err != nil {
			service.logger.Error(ctx, "driver_status_publish_failed", "Failed to publish assignment bind", err, map[string]any{
				"driver_id":  in.DriverID,
				"request_id": corrID,
			})
		}

		service.logger.Info(ctx, "offer_accepted", "Driver accepted delivery offer", map[string]any{
			"driver_id":  in.DriverID,
			"request_id": corrID,
		})
	} else {
		service.logger.Info(ctx, "offer_stale", "Offer no longer available at accept time", map[string]any{
			"driver_id":  in.DriverID,
			"request_id": corrID,
		})
	}

	return out, nil
}

// claim performs the conditional transition to ASSIGNED. Dispatcher jobs
// never reach this path; they are reconciled on arrival by the offer
// consumer.
func (service *courierService) claim(ctx context.Context, driverID, deliveryID string) (bool, error) {
	return service.deliveries.ConditionalUpdateStatus(
		ctx,
		deliveryID,
		[]delivery.Status{delivery.StatusPending, delivery.StatusOffered},
		delivery.StatusAssigned,
		ports.StatusPatch{AssignedDriverID: &driverID},
	)
}
