package service

import (
	"context"
	"time"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/general/contracts"
	"courier-dispatch/internal/ports"
)

// AdvanceStage moves the active delivery one step along the fulfillment
// chain. The write is conditional on the expected prior stage; a concurrent
// external cancellation wins the race and surfaces as the cancelled outcome,
// never as a partial advance.
func (service *courierService) AdvanceStage(ctx context.Context, in ports.AdvanceStageInput) (ports.AdvanceStageResult, error) {
	var out ports.AdvanceStageResult
	corrID := generateCorrelationID()
	ctx = service.logger.WithDeliveryID(ctx, in.DeliveryID)

	if !in.NewStage.Valid() || in.NewStage == delivery.StatusCancelled {
		return out, ports.ErrInvalidTransition
	}

	s := service.sessionFor(in.DriverID)
	var broadcast bool
	var delivered bool

	err := service.call(ctx, s, service.cfg.AdvanceTimeout(), func(loopCtx context.Context) error {
		if err := service.ensureLoaded(loopCtx, s); err != nil {
			return err
		}

		if s.activeDeliveryID == nil || *s.activeDeliveryID != in.DeliveryID {
			return ports.ErrNoActiveDelivery
		}

		err := service.withTxRetry(loopCtx, func(txCtx context.Context) error {
			d, err := service.deliveries.GetByID(txCtx, in.DeliveryID)
			if err != nil {
				return err
			}

			if !d.AssignedTo(in.DriverID) {
				return ports.ErrNotAssignedToDriver
			}
			if d.Status == delivery.StatusCancelled {
				return delivery.ErrTerminal
			}
			if err := validateStageAdvance(d, in.NewStage); err != nil {
				return err
			}

			applied, err := service.deliveries.ConditionalUpdateStatus(
				txCtx, in.DeliveryID,
				[]delivery.Status{d.Status}, in.NewStage,
				ports.StatusPatch{},
			)
			if err != nil {
				return err
			}
			if !applied {
				// Lost the race against an external write. Reload to tell
				// cancellation apart from a duplicate advance.
				fresh, err := service.deliveries.GetByID(txCtx, in.DeliveryID)
				if err != nil {
					return err
				}
				if fresh.Status == delivery.StatusCancelled {
					return delivery.ErrTerminal
				}
				return ports.ErrInvalidTransition
			}

			if in.NewStage == delivery.StatusDelivered {
				if err := service.drivers.SetActiveDelivery(txCtx, in.DriverID, nil); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		if in.NewStage == delivery.StatusDelivered {
			s.activeDeliveryID = nil
			delivered = true
		}
		broadcast = in.NewStage.Broadcastable()

		out = ports.AdvanceStageResult{
			Applied:    true,
			DeliveryID: in.DeliveryID,
			Status:     in.NewStage.String(),
			AdvancedAt: time.Now().UTC(),
			Message:    "Delivery stage advanced",
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "stage_advance_failed", "Failed to advance delivery stage", err, map[string]any{
			"driver_id":  in.DriverID,
			"new_stage":  in.NewStage.String(),
			"request_id": corrID,
		})
		return ports.AdvanceStageResult{}, err
	}

	if broadcast {
		msg := contracts.DeliveryStatusMessage{
			DeliveryID:     in.DeliveryID,
			Status:         in.NewStage.String(),
			Timestamp:      out.AdvancedAt,
			DriverID:       in.DriverID,
			DriverLocation: service.lastKnownLocation(ctx, in.DriverID),
			Envelope:       envelope(corrID),
		}
		if err := service.publishDeliveryStatus(ctx, msg); err != nil {
			service.logger.Error(ctx, "delivery_status_publish_failed", "Failed to publish delivery status", err, map[string]any{
				"status":     msg.Status,
				"request_id": corrID,
			})
		}
		if err := service.notifier.NotifyDeliveryStatus(in.DriverID, in.DeliveryID, in.NewStage.String()); err != nil {
			service.logger.Debug(ctx, "ws_notify_skipped", "Driver socket not reachable for status push", map[string]any{
				"driver_id": in.DriverID,
			})
		}
	}

	if delivered {
		service.logger.Info(ctx, "delivery_completed", "Delivery completed and driver unbound", map[string]any{
			"driver_id":  in.DriverID,
			"request_id": corrID,
		})
	} else {
		service.logger.Info(ctx, "stage_advanced", "Delivery stage advanced", map[string]any{
			"driver_id":  in.DriverID,
			"new_stage":  in.NewStage.String(),
			"request_id": corrID,
		})
	}

	return out, nil
}

// validateStageAdvance enforces monotonic, gapless stage movement and the
// multi-stop phase boundaries.
func validateStageAdvance(d *delivery.Delivery, next delivery.Status) error {
	if d.Status == next || next.Precedes(d.Status) {
		return ports.ErrBackwardTransition
	}
	if !d.Status.CanTransitionTo(next) {
		return ports.ErrInvalidTransition
	}

	if d.MultiStop() {
		// IN_TRANSIT means all packages are on board; DELIVERED means the
		// final dropoff finished.
		if next == delivery.StatusInTransit && d.PickupsRemaining() > 0 {
			return ports.ErrInvalidTransition
		}
		if next == delivery.StatusDelivered && !d.FinalDropoffDone() {
			return ports.ErrInvalidTransition
		}
	}
	return nil
}
