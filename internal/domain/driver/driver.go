package driver

import (
	"errors"
	"strings"
	"time"
)

// Driver is the domain entity corresponding to the `drivers` table.
// Created at authentication, never deleted during a session; availability and
// the active delivery binding are mutated only by the session and offer layers.
type Driver struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Operational state
	Availability     Availability
	ActiveDeliveryID *string // nil when idle; at most one
	LastToggleAt     *time.Time
}

var (
	ErrDriverIDRequired    = errors.New("driver id is required")
	ErrAlreadyOnline       = errors.New("driver is already online")
	ErrAlreadyOffline      = errors.New("driver is already offline")
	ErrHasActiveDelivery   = errors.New("driver has an active delivery")
	ErrNoActiveDelivery    = errors.New("driver has no active delivery")
	ErrDeliveryBindTakenUp = errors.New("another delivery is already active")
)

// NewDriver creates a new Driver entity in the fail-safe OFFLINE state.
func NewDriver(id string) (*Driver, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, ErrDriverIDRequired
	}

	now := time.Now().UTC()
	return &Driver{
		ID:           id,
		CreatedAt:    now,
		UpdatedAt:    now,
		Availability: AvailabilityOffline,
	}, nil
}

// GoOnline transitions OFFLINE -> ONLINE.
func (driver *Driver) GoOnline() error {
	if driver.Availability == AvailabilityOnline {
		return ErrAlreadyOnline
	}
	driver.setAvailability(AvailabilityOnline)
	return nil
}

// GoOffline transitions ONLINE -> OFFLINE. With an active delivery the
// transition must be force-confirmed by the caller.
func (driver *Driver) GoOffline(force bool) error {
	if driver.Availability == AvailabilityOffline {
		return ErrAlreadyOffline
	}
	if driver.ActiveDeliveryID != nil && !force {
		return ErrHasActiveDelivery
	}
	driver.setAvailability(AvailabilityOffline)
	return nil
}

// BindActiveDelivery records the single active delivery for this driver.
func (driver *Driver) BindActiveDelivery(deliveryID string) error {
	if strings.TrimSpace(deliveryID) == "" {
		return errors.New("delivery id is required")
	}
	if driver.ActiveDeliveryID != nil && *driver.ActiveDeliveryID != deliveryID {
		return ErrDeliveryBindTakenUp
	}
	driver.ActiveDeliveryID = &deliveryID
	driver.touch()
	return nil
}

// ClearActiveDelivery drops the active delivery binding (delivered or cancelled).
func (driver *Driver) ClearActiveDelivery() {
	driver.ActiveDeliveryID = nil
	driver.touch()
}

// WithinCooldown reports whether a toggle request at `at` lands inside the
// debounce window that started at the previous toggle.
func (driver *Driver) WithinCooldown(at time.Time, window time.Duration) bool {
	if driver.LastToggleAt == nil || window <= 0 {
		return false
	}
	return at.Sub(*driver.LastToggleAt) < window
}

// ---- internal helpers ----

func (driver *Driver) setAvailability(availability Availability) {
	now := time.Now().UTC()
	driver.Availability = availability
	driver.LastToggleAt = &now
	driver.UpdatedAt = now
}

func (driver *Driver) touch() {
	driver.UpdatedAt = time.Now().UTC()
}
