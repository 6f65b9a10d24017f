package ports

import (
	"context"
	"time"

	"courier-dispatch/internal/domain/delivery"
)

// ----- DTOs for the Courier Service -----

// GeoPoint mirrors {"latitude","longitude"} request bodies.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GoOnlineInput is the validated input for POST /drivers/{driver_id}/online.
// A current position fix is required before the transition commits.
type GoOnlineInput struct {
	DriverID  string  // from path
	Latitude  float64 // from body
	Longitude float64 // from body
}

// GoOnlineResult matches the API response for going online.
type GoOnlineResult struct {
	Availability string `json:"availability"` // "ONLINE"
	Message      string `json:"message"`
}

// GoOfflineInput is the validated input for POST /drivers/{driver_id}/offline.
type GoOfflineInput struct {
	DriverID string // from path
	Force    bool   // from body; required when an active delivery exists
}

// GoOfflineResult matches the API response for going offline.
type GoOfflineResult struct {
	Availability string `json:"availability"` // "OFFLINE"
	Message      string `json:"message"`
}

// AcceptOfferInput is the validated input for POST /deliveries/{delivery_id}/accept.
type AcceptOfferInput struct {
	DriverID   string // from token
	DeliveryID string // from path
}

// AcceptOfferResult matches the API response for accepting an offer.
// Applied=false with a zero error is the stale-offer outcome: the job was
// already taken or cancelled, local offer state is cleared.
type AcceptOfferResult struct {
	Applied    bool   `json:"applied"`
	DeliveryID string `json:"delivery_id"`
	Status     string `json:"status,omitempty"`
	Message    string `json:"message"`
}

// DeclineOfferInput is the validated input for POST /deliveries/{delivery_id}/decline.
type DeclineOfferInput struct {
	DriverID   string // from token
	DeliveryID string // from path
}

// DeclineOfferResult matches the API response for declining an offer.
type DeclineOfferResult struct {
	DeliveryID string `json:"delivery_id"`
	Message    string `json:"message"`
}

// AdvanceStageInput is the validated input for POST /deliveries/{delivery_id}/advance.
type AdvanceStageInput struct {
	DriverID   string // from token
	DeliveryID string // from path
	NewStage   delivery.Status
}

// AdvanceStageResult matches the API response for a stage advance.
type AdvanceStageResult struct {
	Applied    bool      `json:"applied"`
	DeliveryID string    `json:"delivery_id"`
	Status     string    `json:"status"`
	AdvancedAt time.Time `json:"advanced_at"`
	Message    string    `json:"message"`
}

// AdvanceStopInput is the validated input for POST /deliveries/{delivery_id}/stops/{position}/advance.
type AdvanceStopInput struct {
	DriverID   string
	DeliveryID string
	Position   int
	NewStatus  delivery.StopStatus
}

// AdvanceStopResult matches the API response for a stop sub-transition.
type AdvanceStopResult struct {
	Applied        bool   `json:"applied"`
	DeliveryID     string `json:"delivery_id"`
	Position       int    `json:"position"`
	StopStatus     string `json:"stop_status"`
	DeliveryStatus string `json:"delivery_status"` // parent status after phase checks
	Message        string `json:"message"`
}

// UpdateLocationInput is the validated input for POST /drivers/{driver_id}/location.
type UpdateLocationInput struct {
	DriverID       string   // from path
	Latitude       float64  // from body
	Longitude      float64  // from body
	SpeedKmh       *float64 // optional
	HeadingDegrees *float64 // optional
}

// UpdateLocationResult matches the API response for a location sample.
type UpdateLocationResult struct {
	Accepted  bool      `json:"accepted"`
	Published bool      `json:"published"` // false when rate-limited or channel down
	Timestamp time.Time `json:"timestamp"`
}

// ActiveDeliveryResult is the read-through view of the active delivery.
type ActiveDeliveryResult struct {
	Delivery *delivery.Delivery `json:"delivery"` // nil when idle
}

// SessionSnapshot is the presentation-layer view of one driver session.
type SessionSnapshot struct {
	DriverID         string  `json:"driver_id"`
	Availability     string  `json:"availability"`
	ActiveDeliveryID *string `json:"active_delivery_id,omitempty"`
	PendingOffers    int     `json:"pending_offers"`
}

// ----- Courier Service Interface -----

// CourierService exposes the driver availability and delivery assignment
// coordination boundary to the presentation layer.
type CourierService interface {
	GoOnline(ctx context.Context, in GoOnlineInput) (GoOnlineResult, error)
	GoOffline(ctx context.Context, in GoOfflineInput) (GoOfflineResult, error)
	AcceptOffer(ctx context.Context, in AcceptOfferInput) (AcceptOfferResult, error)
	DeclineOffer(ctx context.Context, in DeclineOfferInput) (DeclineOfferResult, error)
	AdvanceStage(ctx context.Context, in AdvanceStageInput) (AdvanceStageResult, error)
	AdvanceStop(ctx context.Context, in AdvanceStopInput) (AdvanceStopResult, error)
	UpdateLocation(ctx context.Context, in UpdateLocationInput) (UpdateLocationResult, error)
	RefreshActiveDelivery(ctx context.Context, driverID string) (ActiveDeliveryResult, error)
	Session(ctx context.Context, driverID string) (SessionSnapshot, error)

	// PendingDeliveries is the dispatcher's view of the unassigned backlog,
	// oldest first.
	PendingDeliveries(ctx context.Context, limit int) ([]*delivery.Delivery, error)

	// StartBackground launches the offer consumer, the change-feed listener,
	// and runs startup session recovery.
	StartBackground(ctx context.Context) error
}
