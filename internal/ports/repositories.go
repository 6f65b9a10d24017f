package ports

import (
	"context"
	"time"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/domain/driver"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StatusPatch carries optional columns written together with a conditional
// status update.
type StatusPatch struct {
	AssignedDriverID *string
	CancelledReason  *string
}

// DeliveryRepository is the boundary to the assignment store's delivery rows.
// All status mutations go through ConditionalUpdateStatus; the store, not the
// client, serializes concurrent claims.
type DeliveryRepository interface {
	GetByID(ctx context.Context, id string) (*delivery.Delivery, error)
	GetActiveForDriver(ctx context.Context, driverID string) (*delivery.Delivery, error)
	FetchPending(ctx context.Context, limit int) ([]*delivery.Delivery, error)

	// ConditionalUpdateStatus applies "SET status=next WHERE id AND status IN
	// expected" plus the patch, and reports whether any row was updated.
	// A false result with nil error is a lost race (stale offer or external
	// cancellation), never a transport failure.
	ConditionalUpdateStatus(ctx context.Context, id string, expected []delivery.Status, next delivery.Status, patch StatusPatch) (bool, error)
}

// StopRepository manages the ordered stop list of multi-stop deliveries.
type StopRepository interface {
	ListByDelivery(ctx context.Context, deliveryID string) ([]delivery.Stop, error)
	ConditionalUpdateStopStatus(ctx context.Context, deliveryID string, position int, expected []delivery.StopStatus, next delivery.StopStatus) (bool, error)
}

// DriverRepository defines the methods for managing driver rows.
type DriverRepository interface {
	CreateDriver(ctx context.Context, d *driver.Driver) error
	GetByID(ctx context.Context, driverID string) (*driver.Driver, error)
	UpdateAvailability(ctx context.Context, driverID string, availability driver.Availability, toggledAt time.Time) error
	SetActiveDelivery(ctx context.Context, driverID string, deliveryID *string) error
	ListByAvailability(ctx context.Context, availability driver.Availability) ([]*driver.Driver, error)
}

// ChangeRow is one row-level mutation observed on the assignment store's
// change-feed.
type ChangeRow struct {
	DeliveryID       string
	OldStatus        delivery.Status
	NewStatus        delivery.Status
	AssignedDriverID *string
	CancelledReason  *string
}

// ChangeFeed streams delivery row mutations. Subscribe blocks until ctx is
// done, delivering each row to the handler; reconnection is internal and shows
// up as a gap in events.
type ChangeFeed interface {
	Subscribe(ctx context.Context, handler func(ChangeRow)) error
}

// LocationCache holds the last-known device position per driver. Positions
// never reach the assignment store; this cache feeds status broadcasts and
// rate-limited republish decisions.
type LocationCache interface {
	SetLast(ctx context.Context, driverID string, loc DriverLocation) error
	GetLast(ctx context.Context, driverID string) (*DriverLocation, error)
}

// DriverLocation is a cached device position sample.
type DriverLocation struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	SpeedKMH       float64   `json:"speed_kmh,omitempty"`
	HeadingDegrees float64   `json:"heading_degrees,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
