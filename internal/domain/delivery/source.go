package delivery

import (
	"errors"
	"strings"
)

// AssignmentSource records how a delivery was bound to a driver.
type AssignmentSource string

const (
	// SourceMarketplace deliveries are offered competitively and claimed via
	// a conditional write.
	SourceMarketplace AssignmentSource = "MARKETPLACE"

	// SourceDispatcher deliveries arrive already bound to a specific driver
	// by a human dispatcher; no claim is attempted.
	SourceDispatcher AssignmentSource = "DISPATCHER"
)

var ErrInvalidAssignmentSource = errors.New("invalid assignment source")

// ParseAssignmentSource normalizes and validates an assignment source string.
func ParseAssignmentSource(in string) (AssignmentSource, error) {
	source := AssignmentSource(strings.ToUpper(strings.TrimSpace(in)))
	if source.Valid() {
		return source, nil
	}
	return "", ErrInvalidAssignmentSource
}

// Valid reports whether the source is a known assignment source.
func (source AssignmentSource) Valid() bool {
	return source == SourceMarketplace || source == SourceDispatcher
}

// String returns the string representation of the AssignmentSource.
func (source AssignmentSource) String() string {
	return string(source)
}
