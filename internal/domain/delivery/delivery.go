package delivery

import (
	"errors"
	"strings"
	"time"
)

// GeoPoint is a coordinate pair with an optional human-readable address.
type GeoPoint struct {
	Lat     float64
	Lng     float64
	Address string
}

// Delivery is the domain entity corresponding to the `deliveries` table.
// The backend scheduler creates rows; the driver core mutates status and
// assignment only through conditional writes keyed on the expected prior
// status.
type Delivery struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Core state
	Status           Status
	AssignedDriverID *string // nil until assigned
	Source           AssignmentSource

	// Route endpoints
	Pickup  GeoPoint
	Dropoff GeoPoint

	// Multi-stop jobs carry an ordered stop list; empty for single-stop.
	Stops []Stop

	// Set only when Status is CANCELLED.
	CancelledReason *string
}

var (
	ErrDeliveryIDRequired = errors.New("delivery id is required")
	ErrNotAssigned        = errors.New("delivery has no assigned driver")
	ErrTerminal           = errors.New("delivery is in a terminal state")
)

// New creates a delivery in PENDING state with the given endpoints.
func New(id string, source AssignmentSource, pickup, dropoff GeoPoint) (*Delivery, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, ErrDeliveryIDRequired
	}
	if !source.Valid() {
		return nil, ErrInvalidAssignmentSource
	}

	now := time.Now().UTC()
	return &Delivery{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusPending,
		Source:    source,
		Pickup:    pickup,
		Dropoff:   dropoff,
	}, nil
}

// AssignedTo reports whether the delivery is bound to the given driver.
func (d *Delivery) AssignedTo(driverID string) bool {
	return d.AssignedDriverID != nil && *d.AssignedDriverID == driverID
}

// Active reports whether the delivery is assigned and not yet terminal.
func (d *Delivery) Active() bool {
	return d.Status.Assigned() && !d.Status.Terminal()
}

// MultiStop reports whether the delivery carries an ordered stop list.
func (d *Delivery) MultiStop() bool {
	return len(d.Stops) > 0
}

// StopAt returns the stop at the given ordered position.
func (d *Delivery) StopAt(position int) (*Stop, error) {
	for i := range d.Stops {
		if d.Stops[i].Position == position {
			return &d.Stops[i], nil
		}
	}
	return nil, ErrStopNotFound
}

// PickupsRemaining counts pickup stops that are not yet completed.
func (d *Delivery) PickupsRemaining() int {
	n := 0
	for i := range d.Stops {
		if d.Stops[i].Kind == StopKindPickup && d.Stops[i].Status != StopStatusCompleted {
			n++
		}
	}
	return n
}

// FinalDropoffDone reports whether the last dropoff stop has completed.
func (d *Delivery) FinalDropoffDone() bool {
	last := -1
	for i := range d.Stops {
		if d.Stops[i].Kind == StopKindDropoff && d.Stops[i].Position > last {
			last = d.Stops[i].Position
		}
	}
	if last < 0 {
		return false
	}
	for i := range d.Stops {
		if d.Stops[i].Position == last {
			return d.Stops[i].Status == StopStatusCompleted
		}
	}
	return false
}
