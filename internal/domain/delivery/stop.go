package delivery

import (
	"errors"
	"strings"
)

// StopKind distinguishes pickup stops from dropoff stops.
type StopKind string

const (
	StopKindPickup  StopKind = "PICKUP"
	StopKindDropoff StopKind = "DROPOFF"
)

// StopStatus is a per-stop lifecycle status for multi-stop deliveries.
type StopStatus string

const (
	StopStatusPending    StopStatus = "PENDING"
	StopStatusInProgress StopStatus = "IN_PROGRESS"
	StopStatusCompleted  StopStatus = "COMPLETED"
	StopStatusFailed     StopStatus = "FAILED"
)

var (
	ErrInvalidStopKind       = errors.New("invalid stop kind")
	ErrInvalidStopStatus     = errors.New("invalid stop status")
	ErrInvalidStopTransition = errors.New("invalid stop status transition")
	ErrStopNotFound          = errors.New("stop not found")
)

// Stop is one ordered waypoint of a multi-stop delivery. Completing a stop is
// a sub-transition; the parent delivery's top-level status only moves at phase
// boundaries.
type Stop struct {
	ID         string
	DeliveryID string
	Position   int
	Kind       StopKind
	Point      GeoPoint
	Status     StopStatus
}

// ParseStopKind normalizes and validates a stop kind string.
func ParseStopKind(in string) (StopKind, error) {
	kind := StopKind(strings.ToUpper(strings.TrimSpace(in)))
	if kind == StopKindPickup || kind == StopKindDropoff {
		return kind, nil
	}
	return "", ErrInvalidStopKind
}

// ParseStopStatus normalizes and validates a stop status string.
func ParseStopStatus(in string) (StopStatus, error) {
	status := StopStatus(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStopStatus
}

// Valid reports whether the stop status is a known constant.
func (status StopStatus) Valid() bool {
	switch status {
	case StopStatusPending, StopStatusInProgress, StopStatusCompleted, StopStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the StopStatus.
func (status StopStatus) String() string {
	return string(status)
}

// Terminal indicates whether the stop has finished one way or the other.
func (status StopStatus) Terminal() bool {
	return status == StopStatusCompleted || status == StopStatusFailed
}

// CanTransitionTo specifies the allowed per-stop sub-cycle:
// PENDING -> IN_PROGRESS -> COMPLETED|FAILED.
func (status StopStatus) CanTransitionTo(next StopStatus) bool {
	switch status {
	case StopStatusPending:
		return next == StopStatusInProgress

	case StopStatusInProgress:
		return next == StopStatusCompleted || next == StopStatusFailed

	default:
		return false
	}
}

// String returns the string representation of the StopKind.
func (kind StopKind) String() string {
	return string(kind)
}
