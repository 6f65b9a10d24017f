package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus("  in_transit ")
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, got)

	_, err = ParseStatus("EN_ROUTE")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStatusChainIsStrictlyOrdered(t *testing.T) {
	chain := []Status{
		StatusAssigned, StatusPickupArrived, StatusPackageCollected,
		StatusInTransit, StatusAtDestination, StatusDelivered,
	}

	for i := 0; i < len(chain)-1; i++ {
		assert.True(t, chain[i].CanTransitionTo(chain[i+1]),
			"%s -> %s should be allowed", chain[i], chain[i+1])
	}

	// skipping a stage is not allowed
	assert.False(t, StatusAssigned.CanTransitionTo(StatusPackageCollected))
	assert.False(t, StatusPickupArrived.CanTransitionTo(StatusInTransit))

	// moving backward is not allowed
	assert.False(t, StatusInTransit.CanTransitionTo(StatusPickupArrived))
	assert.False(t, StatusDelivered.CanTransitionTo(StatusAtDestination))
}

func TestCancellationAllowedFromAnyNonTerminalState(t *testing.T) {
	for _, s := range []Status{
		StatusPending, StatusOffered, StatusAssigned, StatusPickupArrived,
		StatusPackageCollected, StatusInTransit, StatusAtDestination,
	} {
		assert.True(t, s.CanTransitionTo(StatusCancelled), "cancel from %s", s)
	}

	assert.False(t, StatusDelivered.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusCancelled))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusAtDestination.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestBroadcastableStartsAtPickupArrival(t *testing.T) {
	assert.False(t, StatusPending.Broadcastable())
	assert.False(t, StatusOffered.Broadcastable())
	assert.False(t, StatusAssigned.Broadcastable())

	for _, s := range []Status{
		StatusPickupArrived, StatusPackageCollected, StatusInTransit,
		StatusAtDestination, StatusDelivered, StatusCancelled,
	} {
		assert.True(t, s.Broadcastable(), "%s should broadcast", s)
	}
}

func TestPrecedes(t *testing.T) {
	assert.True(t, StatusAssigned.Precedes(StatusDelivered))
	assert.True(t, StatusPickupArrived.Precedes(StatusPackageCollected))
	assert.False(t, StatusDelivered.Precedes(StatusAssigned))
	assert.False(t, StatusInTransit.Precedes(StatusInTransit))

	// statuses outside the fulfillment chain never precede anything
	assert.False(t, StatusPending.Precedes(StatusAssigned))
	assert.False(t, StatusAssigned.Precedes(StatusCancelled))
}

func TestAssignedBand(t *testing.T) {
	assert.False(t, StatusPending.Assigned())
	assert.False(t, StatusOffered.Assigned())
	assert.False(t, StatusCancelled.Assigned())

	for _, s := range []Status{
		StatusAssigned, StatusPickupArrived, StatusPackageCollected,
		StatusInTransit, StatusAtDestination, StatusDelivered,
	} {
		assert.True(t, s.Assigned(), "%s implies a bound driver", s)
	}
}
