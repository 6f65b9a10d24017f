package postgres

import (
	"context"
	"fmt"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// DeliveryRepo persists deliveries using pgx and plain SQL.
type DeliveryRepo struct{}

// NewDeliveryRepo constructs a new DeliveryRepo.
func NewDeliveryRepo() ports.DeliveryRepository {
	return &DeliveryRepo{}
}

const deliveryColumns = `
	id, created_at, updated_at, status, assigned_driver_id, assignment_source,
	pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address,
	cancelled_reason`

// GetByID fetches a delivery by primary key, including its ordered stop list.
func (repo *DeliveryRepo) GetByID(ctx context.Context, id string) (*delivery.Delivery, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE id = $1
	`, id)

	out, err := scanDelivery(row)
	if err != nil {
		return nil, err
	}

	if err := attachStops(ctx, tx, out); err != nil {
		return nil, err
	}

	return out, nil
}

// GetActiveForDriver fetches the non-terminal delivery currently bound to a driver.
func (repo *DeliveryRepo) GetActiveForDriver(ctx context.Context, driverID string) (*delivery.Delivery, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE assigned_driver_id = $1
		  AND status IN ('ASSIGNED', 'PICKUP_ARRIVED', 'PACKAGE_COLLECTED', 'IN_TRANSIT', 'AT_DESTINATION')
		ORDER BY updated_at DESC
		LIMIT 1
	`, driverID)

	out, err := scanDelivery(row)
	if err != nil {
		// no active delivery found
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := attachStops(ctx, tx, out); err != nil {
		return nil, err
	}

	return out, nil
}

// FetchPending returns currently offerable deliveries (oldest first).
func (repo *DeliveryRepo) FetchPending(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := tx.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE status IN ('PENDING', 'OFFERED')
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending deliveries: %w", err)
	}
	defer rows.Close()

	var out []*delivery.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

// ConditionalUpdateStatus performs the compare-and-swap style write that all
// status mutations go through. Zero rows affected means the expected-status
// guard failed: the row was claimed by another driver or moved externally.
func (repo *DeliveryRepo) ConditionalUpdateStatus(
	ctx context.Context,
	id string,
	expected []delivery.Status,
	next delivery.Status,
	patch ports.StatusPatch,
) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	if !next.Valid() {
		return false, delivery.ErrInvalidStatus
	}

	expectedStrs := make([]string, len(expected))
	for i, s := range expected {
		expectedStrs[i] = s.String()
	}

	query := `
		UPDATE deliveries
		SET status = $1,
		    updated_at = now()`
	args := []any{next.String()}
	n := 1

	// optional patch columns
	if patch.AssignedDriverID != nil {
		n++
		query += fmt.Sprintf(", assigned_driver_id = $%d", n)
		args = append(args, *patch.AssignedDriverID)
	}
	if patch.CancelledReason != nil {
		n++
		query += fmt.Sprintf(", cancelled_reason = $%d", n)
		args = append(args, *patch.CancelledReason)
	}

	query += fmt.Sprintf(`
		WHERE id = $%d
		  AND status = ANY($%d)`, n+1, n+2)
	args = append(args, id, expectedStrs)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("conditional update delivery %s: %w", id, err)
	}

	return tag.RowsAffected() == 1, nil
}

// ----- scanning helpers -----

// scanDelivery reads one delivery row in deliveryColumns order.
func scanDelivery(row pgx.Row) (*delivery.Delivery, error) {
	var out delivery.Delivery
	var status, source string

	err := row.Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &status, &out.AssignedDriverID, &source,
		&out.Pickup.Lat, &out.Pickup.Lng, &out.Pickup.Address,
		&out.Dropoff.Lat, &out.Dropoff.Lng, &out.Dropoff.Address,
		&out.CancelledReason,
	)
	if err != nil {
		return nil, err
	}

	out.Status = delivery.Status(status)
	out.Source = delivery.AssignmentSource(source)
	return &out, nil
}

// attachStops loads the ordered stop list for multi-stop deliveries.
func attachStops(ctx context.Context, tx pgx.Tx, d *delivery.Delivery) error {
	rows, err := tx.Query(ctx, `
		SELECT id, delivery_id, position, kind, lat, lng, address, status
		FROM stops
		WHERE delivery_id = $1
		ORDER BY position ASC
	`, d.ID)
	if err != nil {
		return fmt.Errorf("query stops for %s: %w", d.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var st delivery.Stop
		var kind, status string
		if err := rows.Scan(&st.ID, &st.DeliveryID, &st.Position, &kind, &st.Point.Lat, &st.Point.Lng, &st.Point.Address, &status); err != nil {
			return fmt.Errorf("scan stop: %w", err)
		}
		st.Kind = delivery.StopKind(kind)
		st.Status = delivery.StopStatus(status)
		d.Stops = append(d.Stops, st)
	}

	return rows.Err()
}
