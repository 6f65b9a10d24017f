package service

import (
	"context"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/ports"
)

// RefreshActiveDelivery re-reads the driver's active delivery from the store
// and reconciles the session cache with it. This is the driver app's recovery
// read after a reconnect or a suspected missed push.
func (service *courierService) RefreshActiveDelivery(ctx context.Context, driverID string) (ports.ActiveDeliveryResult, error) {
	var out ports.ActiveDeliveryResult

	s := service.sessionFor(driverID)

	err := service.call(ctx, s, service.cfg.AdvanceTimeout(), func(loopCtx context.Context) error {
		if err := service.ensureLoaded(loopCtx, s); err != nil {
			return err
		}

		var d *delivery.Delivery
		err := service.withTxRetry(loopCtx, func(txCtx context.Context) error {
			var err error
			d, err = service.deliveries.GetActiveForDriver(txCtx, driverID)
			return err
		})
		if err != nil {
			return err
		}

		// Reconcile: the store wins over the local cache.
		if d == nil {
			s.activeDeliveryID = nil
		} else {
			id := d.ID
			s.activeDeliveryID = &id
			delete(s.offers, id)
		}

		out = ports.ActiveDeliveryResult{Delivery: d}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "active_delivery_refresh_failed", "Failed to refresh active delivery", err, map[string]any{
			"driver_id": driverID,
		})
		return ports.ActiveDeliveryResult{}, err
	}

	return out, nil
}

// Session returns a point-in-time view of the driver's coordinator state.
func (service *courierService) Session(ctx context.Context, driverID string) (ports.SessionSnapshot, error) {
	var out ports.SessionSnapshot

	s := service.sessionFor(driverID)

	err := service.call(ctx, s, service.cfg.ToggleTimeout(), func(loopCtx context.Context) error {
		if err := service.ensureLoaded(loopCtx, s); err != nil {
			return err
		}

		out = ports.SessionSnapshot{
			DriverID:      driverID,
			Availability:  s.availability.String(),
			PendingOffers: len(s.offers),
		}
		if s.activeDeliveryID != nil {
			id := *s.activeDeliveryID
			out.ActiveDeliveryID = &id
		}
		if out.Availability == "" {
			out.Availability = driver.AvailabilityOffline.String()
		}
		return nil
	})
	if err != nil {
		return ports.SessionSnapshot{}, err
	}

	return out, nil
}
