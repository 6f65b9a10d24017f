package service

import (
	"context"

	"courier-dispatch/internal/ports"
)

// DeclineOffer removes the offer from the driver's local inbox. Declining is
// deliberately local-only: the store row keeps its status and the relayer's
// own timeout re-offers the job elsewhere. No store write, no broadcast.
func (service *courierService) DeclineOffer(ctx context.Context, in ports.DeclineOfferInput) (ports.DeclineOfferResult, error) {
	var out ports.DeclineOfferResult
	ctx = service.logger.WithDeliveryID(ctx, in.DeliveryID)

	s := service.sessionFor(in.DriverID)

	err := service.call(ctx, s, service.cfg.AcceptTimeout(), func(loopCtx context.Context) error {
		if _, ok := s.offers[in.DeliveryID]; !ok {
			return ports.ErrOfferNotFound
		}
		delete(s.offers, in.DeliveryID)

		out = ports.DeclineOfferResult{
			DeliveryID: in.DeliveryID,
			Message:    "Offer declined",
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "offer_decline_failed", "Failed to decline delivery offer", err, map[string]any{
			"driver_id": in.DriverID,
		})
		return ports.DeclineOfferResult{}, err
	}

	service.logger.Info(ctx, "offer_declined", "Driver declined delivery offer", map[string]any{
		"driver_id": in.DriverID,
	})
	return out, nil
}
