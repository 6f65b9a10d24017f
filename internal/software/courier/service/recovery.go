package service

import (
	"context"
	"time"

	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/general/contracts"
)

// recoverSessions reconciles driver rows with reality after a restart.
// Drivers holding an active delivery stay ONLINE so the job is not orphaned;
// ONLINE drivers without one are reset OFFLINE and must re-affirm their
// availability.
func (service *courierService) recoverSessions(ctx context.Context) error {
	var online []*driver.Driver

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		online, err = service.drivers.ListByAvailability(txCtx, driver.AvailabilityOnline)
		return err
	})
	if err != nil {
		return err
	}

	var kept, reset int
	for _, d := range online {
		if d.ActiveDeliveryID != nil {
			// Prime the session cache so the first command after restart does
			// not observe a stale binding.
			s := service.sessionFor(d.ID)
			row := *d
			_ = s.post(func(context.Context) {
				s.loaded = true
				s.availability = row.Availability
				s.activeDeliveryID = row.ActiveDeliveryID
				s.lastToggleAt = row.LastToggleAt
			})
			kept++
			continue
		}

		now := time.Now().UTC()
		err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
			return service.drivers.UpdateAvailability(txCtx, d.ID, driver.AvailabilityOffline, now)
		})
		if err != nil {
			service.logger.Error(ctx, "session_recovery_failed", "Failed to reset idle online driver", err, map[string]any{
				"driver_id": d.ID,
			})
			continue
		}
		reset++

		statusMsg := contracts.DriverStatusMessage{
			DriverID:  d.ID,
			Status:    driver.AvailabilityOffline.String(),
			Timestamp: now,
			Envelope:  envelope(generateCorrelationID()),
		}
		if err := service.publishDriverStatus(ctx, statusMsg); err != nil {
			service.logger.Error(ctx, "driver_status_publish_failed", "Failed to publish recovery status", err, map[string]any{
				"driver_id": d.ID,
			})
		}
	}

	service.logger.Info(ctx, "session_recovery_done", "Startup session recovery finished", map[string]any{
		"online_found": len(online),
		"kept_online":  kept,
		"reset":        reset,
	})
	return nil
}
