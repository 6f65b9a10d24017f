package ports

import "errors"

// Error taxonomy for the coordination core.
//
// Stale-offer and reconciliation-drift conditions are recovered internally and
// surface only as informational outcomes; invariant violations are rejected
// synchronously and never retried; transport failures get one automatic retry
// and are then surfaced as retryable.
var (
	// ErrOfferNoLongerAvailable means the conditional claim found the row
	// already taken or cancelled. Non-fatal: the offer is dropped locally.
	ErrOfferNoLongerAvailable = errors.New("offer is no longer available")

	// ErrToggleInProgress rejects availability toggles inside the debounce
	// window.
	ErrToggleInProgress = errors.New("availability toggle in progress")

	// ErrActiveDelivery rejects going offline with an active delivery unless
	// the caller force-confirms.
	ErrActiveDelivery = errors.New("active delivery exists: force-confirm to go offline")

	// ErrNoActiveDelivery rejects stage advances without an active delivery.
	ErrNoActiveDelivery = errors.New("no active delivery")

	// ErrBackwardTransition rejects stage advances that move against the
	// fulfillment order.
	ErrBackwardTransition = errors.New("stage cannot move backward")

	// ErrInvalidTransition rejects stage advances that skip or repeat stages.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrNotAssignedToDriver rejects operations on a delivery bound to a
	// different driver.
	ErrNotAssignedToDriver = errors.New("delivery is not assigned to this driver")

	// ErrDriverOffline drops operations that require an online session.
	ErrDriverOffline = errors.New("driver is offline")

	// ErrOfferNotFound means the referenced offer is not in the inbox.
	ErrOfferNotFound = errors.New("offer not found")

	// ErrSessionBusy means the session inbox is full; the caller should retry.
	ErrSessionBusy = errors.New("session inbox is full")

	// ErrInvalidCoordinates rejects out-of-range latitude/longitude input.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)
