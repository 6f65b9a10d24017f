package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopSubCycle(t *testing.T) {
	assert.True(t, StopStatusPending.CanTransitionTo(StopStatusInProgress))
	assert.True(t, StopStatusInProgress.CanTransitionTo(StopStatusCompleted))
	assert.True(t, StopStatusInProgress.CanTransitionTo(StopStatusFailed))

	assert.False(t, StopStatusPending.CanTransitionTo(StopStatusCompleted))
	assert.False(t, StopStatusCompleted.CanTransitionTo(StopStatusInProgress))
	assert.False(t, StopStatusFailed.CanTransitionTo(StopStatusInProgress))

	assert.True(t, StopStatusCompleted.Terminal())
	assert.True(t, StopStatusFailed.Terminal())
	assert.False(t, StopStatusInProgress.Terminal())
}

func TestParseStopKindAndStatus(t *testing.T) {
	kind, err := ParseStopKind("pickup")
	require.NoError(t, err)
	assert.Equal(t, StopKindPickup, kind)

	_, err = ParseStopKind("WAYPOINT")
	assert.ErrorIs(t, err, ErrInvalidStopKind)

	status, err := ParseStopStatus(" in_progress")
	require.NoError(t, err)
	assert.Equal(t, StopStatusInProgress, status)

	_, err = ParseStopStatus("DONE")
	assert.ErrorIs(t, err, ErrInvalidStopStatus)
}

func multiStopDelivery() *Delivery {
	d, _ := New("del_1", SourceMarketplace, GeoPoint{Lat: 1, Lng: 2}, GeoPoint{Lat: 3, Lng: 4})
	d.Stops = []Stop{
		{ID: "s0", DeliveryID: d.ID, Position: 0, Kind: StopKindPickup, Status: StopStatusPending},
		{ID: "s1", DeliveryID: d.ID, Position: 1, Kind: StopKindPickup, Status: StopStatusPending},
		{ID: "s2", DeliveryID: d.ID, Position: 2, Kind: StopKindDropoff, Status: StopStatusPending},
		{ID: "s3", DeliveryID: d.ID, Position: 3, Kind: StopKindDropoff, Status: StopStatusPending},
	}
	return d
}

func TestPickupsRemaining(t *testing.T) {
	d := multiStopDelivery()
	assert.Equal(t, 2, d.PickupsRemaining())

	d.Stops[0].Status = StopStatusCompleted
	assert.Equal(t, 1, d.PickupsRemaining())

	// a failed pickup still counts as remaining
	d.Stops[1].Status = StopStatusFailed
	assert.Equal(t, 1, d.PickupsRemaining())

	d.Stops[1].Status = StopStatusCompleted
	assert.Equal(t, 0, d.PickupsRemaining())
}

func TestFinalDropoffDone(t *testing.T) {
	d := multiStopDelivery()
	assert.False(t, d.FinalDropoffDone())

	// completing an earlier dropoff is not enough
	d.Stops[2].Status = StopStatusCompleted
	assert.False(t, d.FinalDropoffDone())

	d.Stops[3].Status = StopStatusCompleted
	assert.True(t, d.FinalDropoffDone())

	single, _ := New("del_2", SourceDispatcher, GeoPoint{}, GeoPoint{})
	assert.False(t, single.FinalDropoffDone())
}

func TestStopAt(t *testing.T) {
	d := multiStopDelivery()

	stop, err := d.StopAt(2)
	require.NoError(t, err)
	assert.Equal(t, StopKindDropoff, stop.Kind)

	_, err = d.StopAt(9)
	assert.ErrorIs(t, err, ErrStopNotFound)
}

func TestNewDeliveryValidation(t *testing.T) {
	_, err := New("  ", SourceMarketplace, GeoPoint{}, GeoPoint{})
	assert.ErrorIs(t, err, ErrDeliveryIDRequired)

	_, err = New("del_3", AssignmentSource("AUCTION"), GeoPoint{}, GeoPoint{})
	assert.ErrorIs(t, err, ErrInvalidAssignmentSource)

	d, err := New("del_3", SourceMarketplace, GeoPoint{Lat: 1}, GeoPoint{Lat: 2})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Status)
	assert.Nil(t, d.AssignedDriverID)
	assert.False(t, d.Active())
	assert.False(t, d.MultiStop())
}
