package postgres

import (
	"context"
	"fmt"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/ports"
)

// StopRepo persists the ordered stop list of multi-stop deliveries.
type StopRepo struct{}

// NewStopRepo constructs a new StopRepo.
func NewStopRepo() ports.StopRepository {
	return &StopRepo{}
}

// ListByDelivery returns the ordered stop list for a delivery.
func (repo *StopRepo) ListByDelivery(ctx context.Context, deliveryID string) ([]delivery.Stop, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, delivery_id, position, kind, lat, lng, address, status
		FROM stops
		WHERE delivery_id = $1
		ORDER BY position ASC
	`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()

	var out []delivery.Stop
	for rows.Next() {
		var st delivery.Stop
		var kind, status string
		if err := rows.Scan(&st.ID, &st.DeliveryID, &st.Position, &kind, &st.Point.Lat, &st.Point.Lng, &st.Point.Address, &status); err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		st.Kind = delivery.StopKind(kind)
		st.Status = delivery.StopStatus(status)
		out = append(out, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

// ConditionalUpdateStopStatus applies the per-stop sub-transition guarded by
// the expected prior stop status. Mirrors the delivery-level conditional
// write: zero rows affected means a lost race.
func (repo *StopRepo) ConditionalUpdateStopStatus(
	ctx context.Context,
	deliveryID string,
	position int,
	expected []delivery.StopStatus,
	next delivery.StopStatus,
) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	if !next.Valid() {
		return false, delivery.ErrInvalidStopStatus
	}

	expectedStrs := make([]string, len(expected))
	for i, s := range expected {
		expectedStrs[i] = s.String()
	}

	tag, err := tx.Exec(ctx, `
		UPDATE stops
		SET status = $1
		WHERE delivery_id = $2
		  AND position = $3
		  AND status = ANY($4)
	`, next.String(), deliveryID, position, expectedStrs)
	if err != nil {
		return false, fmt.Errorf("conditional update stop %s/%d: %w", deliveryID, position, err)
	}

	return tag.RowsAffected() == 1, nil
}
