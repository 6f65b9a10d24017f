package delivery

import (
	"errors"
	"strings"
)

// Status is a delivery status as stored in the `deliveries` table.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusOffered          Status = "OFFERED"
	StatusAssigned         Status = "ASSIGNED"
	StatusPickupArrived    Status = "PICKUP_ARRIVED"
	StatusPackageCollected Status = "PACKAGE_COLLECTED"
	StatusInTransit        Status = "IN_TRANSIT"
	StatusAtDestination    Status = "AT_DESTINATION"
	StatusDelivered        Status = "DELIVERED"
	StatusCancelled        Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid delivery status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed delivery status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusOffered, StatusAssigned, StatusPickupArrived,
		StatusPackageCollected, StatusInTransit, StatusAtDestination,
		StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
// The fulfillment chain is strictly ordered; cancellation is allowed from any
// non-terminal state.
func (status Status) CanTransitionTo(next Status) bool {
	if next == StatusCancelled {
		return !status.Terminal()
	}

	switch status {
	case StatusPending:
		return next == StatusOffered || next == StatusAssigned

	case StatusOffered:
		return next == StatusAssigned

	case StatusAssigned:
		return next == StatusPickupArrived

	case StatusPickupArrived:
		return next == StatusPackageCollected

	case StatusPackageCollected:
		return next == StatusInTransit

	case StatusInTransit:
		return next == StatusAtDestination

	case StatusAtDestination:
		return next == StatusDelivered

	case StatusDelivered, StatusCancelled:
		return false

	default:
		return false
	}
}

// Terminal indicates if the status is in a terminal state.
func (status Status) Terminal() bool {
	return status == StatusDelivered || status == StatusCancelled
}

// Assigned reports whether the status implies a bound driver.
// Matches the invariant: assigned_driver_id is non-null iff status is in
// ASSIGNED..DELIVERED.
func (status Status) Assigned() bool {
	switch status {
	case StatusAssigned, StatusPickupArrived, StatusPackageCollected,
		StatusInTransit, StatusAtDestination, StatusDelivered:
		return true
	default:
		return false
	}
}

// Broadcastable reports whether a transition into this status is pushed to
// customer tracking. Pre-commitment states stay private.
func (status Status) Broadcastable() bool {
	switch status {
	case StatusPickupArrived, StatusPackageCollected, StatusInTransit,
		StatusAtDestination, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// ordinal positions the fulfillment chain for monotonicity checks.
// Statuses outside the chain map to -1.
func (status Status) ordinal() int {
	switch status {
	case StatusAssigned:
		return 0
	case StatusPickupArrived:
		return 1
	case StatusPackageCollected:
		return 2
	case StatusInTransit:
		return 3
	case StatusAtDestination:
		return 4
	case StatusDelivered:
		return 5
	default:
		return -1
	}
}

// Precedes reports whether status comes strictly before next in the
// fulfillment chain. Used to reject backward stage advances with a
// dedicated error rather than a generic invalid-transition one.
func (status Status) Precedes(next Status) bool {
	a, b := status.ordinal(), next.ordinal()
	return a >= 0 && b >= 0 && a < b
}
