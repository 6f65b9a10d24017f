package postgres

import (
	"context"
	"fmt"
	"time"

	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// DriverRepo persists drivers using pgx and plain SQL.
type DriverRepo struct{}

// NewDriverRepo constructs a new DriverRepo.
func NewDriverRepo() ports.DriverRepository {
	return &DriverRepo{}
}

// CreateDriver inserts a new driver row in the fail-safe OFFLINE state.
func (repo *DriverRepo) CreateDriver(ctx context.Context, d *driver.Driver) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO drivers (id, availability)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET updated_at = now()
		RETURNING created_at, updated_at
	`, d.ID, d.Availability.String()).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert driver %s: %w", d.ID, err)
	}

	return nil
}

// GetByID fetches a driver by primary key.
func (repo *DriverRepo) GetByID(ctx context.Context, driverID string) (*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out driver.Driver
	var availability string

	err = tx.QueryRow(ctx, `
		SELECT id, created_at, updated_at, availability, active_delivery_id, last_toggle_at
		FROM drivers
		WHERE id = $1
	`, driverID).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &availability, &out.ActiveDeliveryID, &out.LastToggleAt,
	)
	if err != nil {
		return nil, err
	}

	out.Availability = driver.Availability(availability)
	return &out, nil
}

// UpdateAvailability sets the availability and stamps the toggle time.
func (repo *DriverRepo) UpdateAvailability(ctx context.Context, driverID string, availability driver.Availability, toggledAt time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if !availability.Valid() {
		return driver.ErrInvalidAvailability
	}

	tag, err := tx.Exec(ctx, `
		UPDATE drivers
		SET availability = $1,
		    last_toggle_at = $2,
		    updated_at = now()
		WHERE id = $3
	`, availability.String(), toggledAt, driverID)
	if err != nil {
		return fmt.Errorf("update driver availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return nil
}

// SetActiveDelivery binds or clears (nil) the driver's single active delivery.
func (repo *DriverRepo) SetActiveDelivery(ctx context.Context, driverID string, deliveryID *string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE drivers
		SET active_delivery_id = $1,
		    updated_at = now()
		WHERE id = $2
	`, deliveryID, driverID)
	if err != nil {
		return fmt.Errorf("set active delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return nil
}

// ListByAvailability returns drivers currently in the given availability state.
// Used by startup recovery to find sessions persisted ONLINE.
func (repo *DriverRepo) ListByAvailability(ctx context.Context, availability driver.Availability) ([]*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, created_at, updated_at, availability, active_delivery_id, last_toggle_at
		FROM drivers
		WHERE availability = $1
	`, availability.String())
	if err != nil {
		return nil, fmt.Errorf("query drivers by availability: %w", err)
	}
	defer rows.Close()

	var out []*driver.Driver
	for rows.Next() {
		var d driver.Driver
		var av string
		if err := rows.Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt, &av, &d.ActiveDeliveryID, &d.LastToggleAt); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		d.Availability = driver.Availability(av)
		out = append(out, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}
