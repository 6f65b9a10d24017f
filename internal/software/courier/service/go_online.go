package service

import (
	"context"
	"fmt"
	"time"

	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/general/contracts"
	"courier-dispatch/internal/ports"
)

// GoOnline sets the driver ONLINE and records the current position. The
// transition requires a fresh position fix and is debounced against rapid
// toggling.
func (service *courierService) GoOnline(ctx context.Context, in ports.GoOnlineInput) (ports.GoOnlineResult, error) {
	var out ports.GoOnlineResult
	corrID := generateCorrelationID()

	if !validCoordinates(in.Latitude, in.Longitude) {
		return out, ports.ErrInvalidCoordinates
	}

	s := service.sessionFor(in.DriverID)
	var published bool

	err := service.call(ctx, s, service.cfg.ToggleTimeout(), func(loopCtx context.Context) error {
		if err := service.ensureLoaded(loopCtx, s); err != nil {
			return err
		}

		now := time.Now().UTC()
		d := s.entity()
		if d.WithinCooldown(now, service.cfg.ToggleCooldown()) {
			return ports.ErrToggleInProgress
		}

		if err := d.GoOnline(); err != nil {
			out = ports.GoOnlineResult{
				Availability: driver.AvailabilityOnline.String(),
				Message:      "You are already online",
			}
			return nil
		}

		// The broadcast path must be primed before the transition commits;
		// on failure the driver stays OFFLINE and the caller retries.
		if err := service.locations.SetLast(loopCtx, in.DriverID, ports.DriverLocation{
			Lat:       in.Latitude,
			Lng:       in.Longitude,
			Timestamp: now,
		}); err != nil {
			return fmt.Errorf("seed position cache: %w", err)
		}

		err := service.withTxRetry(loopCtx, func(txCtx context.Context) error {
			return service.drivers.UpdateAvailability(txCtx, in.DriverID, driver.AvailabilityOnline, *d.LastToggleAt)
		})
		if err != nil {
			return err
		}

		s.applyEntity(d)
		published = true

		out = ports.GoOnlineResult{
			Availability: driver.AvailabilityOnline.String(),
			Message:      "You are now online and ready to accept deliveries",
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "driver_go_online_failed", "Failed to bring driver online", err, map[string]any{
			"driver_id":  in.DriverID,
			"request_id": corrID,
		})
		return ports.GoOnlineResult{}, err
	}

	if published {
		statusMsg := contracts.DriverStatusMessage{
			DriverID:  in.DriverID,
			Status:    driver.AvailabilityOnline.String(),
			Timestamp: time.Now().UTC(),
			Envelope:  envelope(corrID),
		}
		if err := service.publishDriverStatus(ctx, statusMsg); err != nil {
			service.logger.Error(ctx, "driver_status_publish_failed", "Failed to publish driver status to RabbitMQ", err, map[string]any{
				"driver_id":  in.DriverID,
				"status":     statusMsg.Status,
				"request_id": corrID,
			})
		}

		service.logger.Info(ctx, "driver_online", "Driver successfully went online", map[string]any{
			"driver_id":  in.DriverID,
			"request_id": corrID,
		})
	}

	return out, nil
}
