package service

import (
	"context"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/ports"
)

// AdvanceStop applies one per-stop sub-transition of a multi-stop delivery.
// The parent delivery status does not move here; phase boundaries are crossed
// explicitly through AdvanceStage once the stop list allows it.
func (service *courierService) AdvanceStop(ctx context.Context, in ports.AdvanceStopInput) (ports.AdvanceStopResult, error) {
	var out ports.AdvanceStopResult
	ctx = service.logger.WithDeliveryID(ctx, in.DeliveryID)

	if !in.NewStatus.Valid() {
		return out, delivery.ErrInvalidStopStatus
	}

	expected, err := stopExpectation(in.NewStatus)
	if err != nil {
		return out, err
	}

	s := service.sessionFor(in.DriverID)

	err = service.call(ctx, s, service.cfg.AdvanceTimeout(), func(loopCtx context.Context) error {
		if err := service.ensureLoaded(loopCtx, s); err != nil {
			return err
		}

		if s.activeDeliveryID == nil || *s.activeDeliveryID != in.DeliveryID {
			return ports.ErrNoActiveDelivery
		}

		return service.withTxRetry(loopCtx, func(txCtx context.Context) error {
			d, err := service.deliveries.GetByID(txCtx, in.DeliveryID)
			if err != nil {
				return err
			}

			if !d.AssignedTo(in.DriverID) {
				return ports.ErrNotAssignedToDriver
			}
			if d.Status.Terminal() {
				return delivery.ErrTerminal
			}
			if !d.MultiStop() {
				return delivery.ErrStopNotFound
			}
			if _, err := d.StopAt(in.Position); err != nil {
				return err
			}

			applied, err := service.stops.ConditionalUpdateStopStatus(
				txCtx, in.DeliveryID, in.Position, expected, in.NewStatus,
			)
			if err != nil {
				return err
			}
			if !applied {
				return delivery.ErrInvalidStopTransition
			}

			out = ports.AdvanceStopResult{
				Applied:        true,
				DeliveryID:     in.DeliveryID,
				Position:       in.Position,
				StopStatus:     in.NewStatus.String(),
				DeliveryStatus: d.Status.String(),
				Message:        "Stop advanced",
			}
			return nil
		})
	})
	if err != nil {
		service.logger.Error(ctx, "stop_advance_failed", "Failed to advance stop", err, map[string]any{
			"driver_id":   in.DriverID,
			"position":    in.Position,
			"stop_status": in.NewStatus.String(),
		})
		return ports.AdvanceStopResult{}, err
	}

	service.logger.Info(ctx, "stop_advanced", "Stop advanced", map[string]any{
		"driver_id":   in.DriverID,
		"position":    in.Position,
		"stop_status": in.NewStatus.String(),
	})
	return out, nil
}

// stopExpectation maps the requested stop status to its allowed prior
// statuses under the PENDING -> IN_PROGRESS -> COMPLETED|FAILED sub-cycle.
func stopExpectation(next delivery.StopStatus) ([]delivery.StopStatus, error) {
	switch next {
	case delivery.StopStatusInProgress:
		return []delivery.StopStatus{delivery.StopStatusPending}, nil
	case delivery.StopStatusCompleted, delivery.StopStatusFailed:
		return []delivery.StopStatus{delivery.StopStatusInProgress}, nil
	default:
		return nil, delivery.ErrInvalidStopTransition
	}
}
