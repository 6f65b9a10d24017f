package service

import (
	"context"
	"errors"
	"time"

	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/general/contracts"
	"courier-dispatch/internal/ports"
)

// GoOffline sets the driver OFFLINE and drops any pending offers. With an
// active delivery the transition must be force-confirmed; the delivery itself
// stays bound so the dispatcher can decide its fate.
func (service *courierService) GoOffline(ctx context.Context, in ports.GoOfflineInput) (ports.GoOfflineResult, error) {
	var out ports.GoOfflineResult
	corrID := generateCorrelationID()

	s := service.sessionFor(in.DriverID)
	var published bool
	var activeID string

	err := service.call(ctx, s, service.cfg.ToggleTimeout(), func(loopCtx context.Context) error {
		if err := service.ensureLoaded(loopCtx, s); err != nil {
			return err
		}

		now := time.Now().UTC()
		d := s.entity()
		if d.WithinCooldown(now, service.cfg.ToggleCooldown()) {
			return ports.ErrToggleInProgress
		}

		switch err := d.GoOffline(in.Force); {
		case errors.Is(err, driver.ErrAlreadyOffline):
			out = ports.GoOfflineResult{
				Availability: driver.AvailabilityOffline.String(),
				Message:      "You are already offline",
			}
			return nil
		case errors.Is(err, driver.ErrHasActiveDelivery):
			return ports.ErrActiveDelivery
		case err != nil:
			return err
		}

		if s.activeDeliveryID != nil {
			activeID = *s.activeDeliveryID
		}

		err := service.withTxRetry(loopCtx, func(txCtx context.Context) error {
			return service.drivers.UpdateAvailability(txCtx, in.DriverID, driver.AvailabilityOffline, *d.LastToggleAt)
		})
		if err != nil {
			return err
		}

		// The entity keeps the binding on a forced transition; only
		// availability and the toggle stamp change here.
		s.availability = d.Availability
		s.lastToggleAt = d.LastToggleAt
		published = true

		// Pending offers die with the session; the relayer re-offers
		// elsewhere.
		dropped := len(s.offers)
		s.offers = make(map[string]pendingOffer)
		if dropped > 0 {
			service.logger.Info(loopCtx, "offers_dropped", "Dropped pending offers on going offline", map[string]any{
				"driver_id": in.DriverID,
				"count":     dropped,
			})
		}

		out = ports.GoOfflineResult{
			Availability: driver.AvailabilityOffline.String(),
			Message:      "You are now offline",
		}
		if activeID != "" {
			out.Message = "You are now offline; your active delivery needs dispatcher attention"
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "driver_go_offline_failed", "Failed to bring driver offline", err, map[string]any{
			"driver_id":  in.DriverID,
			"force":      in.Force,
			"request_id": corrID,
		})
		return ports.GoOfflineResult{}, err
	}

	if published {
		statusMsg := contracts.DriverStatusMessage{
			DriverID:   in.DriverID,
			Status:     driver.AvailabilityOffline.String(),
			DeliveryID: activeID,
			Timestamp:  time.Now().UTC(),
			Envelope:   envelope(corrID),
		}
		if err := service.publishDriverStatus(ctx, statusMsg); err != nil {
			service.logger.Error(ctx, "driver_status_publish_failed", "Failed to publish driver status to RabbitMQ", err, map[string]any{
				"driver_id":  in.DriverID,
				"status":     statusMsg.Status,
				"request_id": corrID,
			})
		}

		service.logger.Info(ctx, "driver_offline", "Driver successfully went offline", map[string]any{
			"driver_id":  in.DriverID,
			"forced":     in.Force,
			"request_id": corrID,
		})
	}

	return out, nil
}
