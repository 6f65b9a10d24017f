package service

import (
	"context"
	"time"

	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/general/contracts"
	"courier-dispatch/internal/ports"
)

// UpdateLocation caches a device position sample and broadcasts it on the
// location fanout. The path is fully decoupled from the assignment store:
// nothing here blocks or fails a state transition, and a broker outage only
// means the sample is cached but not published.
func (service *courierService) UpdateLocation(ctx context.Context, in ports.UpdateLocationInput) (ports.UpdateLocationResult, error) {
	var out ports.UpdateLocationResult

	if !validCoordinates(in.Latitude, in.Longitude) {
		return out, ports.ErrInvalidCoordinates
	}

	s := service.sessionFor(in.DriverID)

	err := service.call(ctx, s, service.cfg.ToggleTimeout(), func(loopCtx context.Context) error {
		if err := service.ensureLoaded(loopCtx, s); err != nil {
			return err
		}

		// An active delivery keeps the path open even after a forced
		// offline; customer tracking must not go dark mid-job.
		if s.availability != driver.AvailabilityOnline && s.activeDeliveryID == nil {
			return ports.ErrDriverOffline
		}

		now := time.Now().UTC()
		loc := ports.DriverLocation{
			Lat:       in.Latitude,
			Lng:       in.Longitude,
			Timestamp: now,
		}
		if in.SpeedKmh != nil {
			loc.SpeedKMH = *in.SpeedKmh
		}
		if in.HeadingDegrees != nil {
			loc.HeadingDegrees = *in.HeadingDegrees
		}

		if err := service.locations.SetLast(loopCtx, in.DriverID, loc); err != nil {
			service.logger.Error(loopCtx, "location_cache_failed", "Failed to cache position sample", err, map[string]any{
				"driver_id": in.DriverID,
			})
		}

		out = ports.UpdateLocationResult{Accepted: true, Timestamp: now}

		// Rate-limit the fanout; the cache always has the newest sample.
		if now.Sub(s.lastPublishAt) < service.cfg.LocationPublishInterval() {
			return nil
		}

		msg := contracts.LocationUpdateMessage{
			DriverID:       in.DriverID,
			Location:       contracts.GeoPoint{Lat: in.Latitude, Lng: in.Longitude},
			SpeedKMH:       loc.SpeedKMH,
			HeadingDegrees: loc.HeadingDegrees,
			Timestamp:      now,
			Envelope:       envelope(generateCorrelationID()),
		}
		if s.activeDeliveryID != nil {
			msg.DeliveryID = *s.activeDeliveryID
		}

		if err := service.broadcastLocationUpdate(loopCtx, msg); err != nil {
			service.logger.Error(loopCtx, "location_publish_failed", "Failed to broadcast location update", err, map[string]any{
				"driver_id": in.DriverID,
			})
			return nil
		}

		s.lastPublishAt = now
		out.Published = true
		return nil
	})
	if err != nil {
		return ports.UpdateLocationResult{}, err
	}

	return out, nil
}
