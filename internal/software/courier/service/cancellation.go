package service

import (
	"context"
	"time"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/ports"
)

// runChangeFeed subscribes to the assignment store's change feed until ctx is
// done. Reconnection lives inside the feed; an error here is terminal for the
// process.
func (service *courierService) runChangeFeed(ctx context.Context) {
	if err := service.feed.Subscribe(ctx, func(row ports.ChangeRow) {
		service.handleChange(ctx, row)
	}); err != nil && ctx.Err() == nil {
		service.logger.Error(ctx, "changefeed_failed", "Change feed subscription ended", err, nil)
	}
}

// handleChange propagates externally observed row mutations into driver
// sessions. Only cancellations matter to the driver core; all other writers
// of the deliveries table are this service itself.
func (service *courierService) handleChange(ctx context.Context, row ports.ChangeRow) {
	if row.NewStatus != delivery.StatusCancelled {
		return
	}

	ctx = service.logger.WithDeliveryID(ctx, row.DeliveryID)

	if row.AssignedDriverID != nil {
		service.propagateCancellation(ctx, *row.AssignedDriverID, row)
		return
	}

	// Unassigned cancellation: scrub the pending offer from every session
	// that holds it so nobody accepts a dead job.
	service.mu.Lock()
	sessions := make([]*session, 0, len(service.sessions))
	for _, s := range service.sessions {
		sessions = append(sessions, s)
	}
	service.mu.Unlock()

	for _, s := range sessions {
		s := s
		_ = s.post(func(loopCtx context.Context) {
			if _, ok := s.offers[row.DeliveryID]; ok {
				delete(s.offers, row.DeliveryID)
				service.logger.Info(loopCtx, "offer_cancelled", "Removed cancelled delivery from offer inbox", map[string]any{
					"driver_id": s.driverID,
				})
			}
		})
	}
}

// propagateCancellation unbinds the delivery from its driver and pushes the
// one-time cancellation notice. Re-observed cancellations of the same
// delivery are de-duplicated per session.
func (service *courierService) propagateCancellation(ctx context.Context, driverID string, row ports.ChangeRow) {
	s := service.sessionFor(driverID)

	err := s.post(func(loopCtx context.Context) {
		if s.cancelNotified[row.DeliveryID] {
			return
		}
		s.cancelNotified[row.DeliveryID] = true

		delete(s.offers, row.DeliveryID)
		if s.activeDeliveryID != nil && *s.activeDeliveryID == row.DeliveryID {
			s.activeDeliveryID = nil

			err := service.withTxRetry(loopCtx, func(txCtx context.Context) error {
				return service.drivers.SetActiveDelivery(txCtx, driverID, nil)
			})
			if err != nil {
				service.logger.Error(loopCtx, "cancellation_unbind_failed", "Failed to clear active delivery binding", err, map[string]any{
					"driver_id": driverID,
				})
			}
		}

		reason := ""
		if row.CancelledReason != nil {
			reason = *row.CancelledReason
		}
		if err := service.notifier.NotifyCancellation(driverID, row.DeliveryID, reason); err != nil {
			// The driver learns about it on the next refresh read instead.
			service.logger.Debug(loopCtx, "cancellation_push_skipped", "Driver socket not reachable for cancellation notice", map[string]any{
				"driver_id": driverID,
			})
		}

		service.logger.Info(loopCtx, "cancellation_propagated", "External cancellation propagated to driver", map[string]any{
			"driver_id":  driverID,
			"old_status": row.OldStatus.String(),
			"reason":     reason,
			"at":         time.Now().UTC(),
		})
	})
	if err != nil {
		service.logger.Error(ctx, "cancellation_post_failed", "Session inbox full, cancellation delayed to next refresh", err, map[string]any{
			"driver_id": driverID,
		})
	}
}
