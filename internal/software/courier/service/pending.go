package service

import (
	"context"

	"courier-dispatch/internal/domain/delivery"
)

const defaultPendingLimit = 50

// PendingDeliveries lists the unassigned backlog for dispatcher tooling.
func (service *courierService) PendingDeliveries(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultPendingLimit
	}

	var out []*delivery.Delivery
	err := service.withTxRetry(ctx, func(txCtx context.Context) error {
		var err error
		out, err = service.deliveries.FetchPending(txCtx, limit)
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "pending_list_failed", "Failed to list pending deliveries", err, map[string]any{
			"limit": limit,
		})
		return nil, err
	}

	return out, nil
}
