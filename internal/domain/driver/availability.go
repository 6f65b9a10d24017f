package driver

import (
	"errors"
	"strings"
)

// Availability is a driver availability state as stored in the `drivers` table.
type Availability string

const (
	AvailabilityOffline Availability = "OFFLINE"
	AvailabilityOnline  Availability = "ONLINE"
)

var ErrInvalidAvailability = errors.New("invalid driver availability")

// ParseAvailability normalizes (uppercases+trims) and validates an availability string.
func ParseAvailability(in string) (Availability, error) {
	availability := Availability(strings.ToUpper(strings.TrimSpace(in)))
	if availability.Valid() {
		return availability, nil
	}
	return "", ErrInvalidAvailability
}

// Valid reports whether the availability is one of the allowed constants.
func (availability Availability) Valid() bool {
	return availability == AvailabilityOffline || availability == AvailabilityOnline
}

// String returns the string representation of the Availability.
func (availability Availability) String() string {
	return string(availability)
}
