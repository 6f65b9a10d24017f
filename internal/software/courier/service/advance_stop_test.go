package service

import (
	"context"
	"testing"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assignMultiStop seeds a two-pickup, two-dropoff delivery bound to the
// driver and primes the session.
func assignMultiStop(t *testing.T, env *testEnv, driverID, deliveryID string, status delivery.Status) {
	t.Helper()
	env.goOnline(t, driverID)

	d, err := delivery.New(deliveryID, delivery.SourceMarketplace,
		delivery.GeoPoint{Lat: 52.0, Lng: 4.0}, delivery.GeoPoint{Lat: 52.3, Lng: 4.3})
	require.NoError(t, err)
	d.Status = status
	d.AssignedDriverID = &driverID
	d.Stops = []delivery.Stop{
		{ID: "s0", DeliveryID: deliveryID, Position: 0, Kind: delivery.StopKindPickup, Status: delivery.StopStatusPending},
		{ID: "s1", DeliveryID: deliveryID, Position: 1, Kind: delivery.StopKindPickup, Status: delivery.StopStatusPending},
		{ID: "s2", DeliveryID: deliveryID, Position: 2, Kind: delivery.StopKindDropoff, Status: delivery.StopStatusPending},
		{ID: "s3", DeliveryID: deliveryID, Position: 3, Kind: delivery.StopKindDropoff, Status: delivery.StopStatusPending},
	}
	env.deliveries.seed(d)
	require.NoError(t, env.drivers.SetActiveDelivery(context.Background(), driverID, &deliveryID))

	res, err := env.svc.RefreshActiveDelivery(context.Background(), driverID)
	require.NoError(t, err)
	require.NotNil(t, res.Delivery)
}

func advanceStop(t *testing.T, env *testEnv, driverID, deliveryID string, position int, next delivery.StopStatus) (ports.AdvanceStopResult, error) {
	t.Helper()
	return env.svc.AdvanceStop(context.Background(), ports.AdvanceStopInput{
		DriverID: driverID, DeliveryID: deliveryID, Position: position, NewStatus: next,
	})
}

// completeStop walks one stop through its sub-cycle.
func completeStop(t *testing.T, env *testEnv, driverID, deliveryID string, position int) {
	t.Helper()
	_, err := advanceStop(t, env, driverID, deliveryID, position, delivery.StopStatusInProgress)
	require.NoError(t, err)
	_, err = advanceStop(t, env, driverID, deliveryID, position, delivery.StopStatusCompleted)
	require.NoError(t, err)
}

func TestAdvanceStopSubCycle(t *testing.T) {
	env := newTestEnv(t, nil)
	assignMultiStop(t, env, "drv_1", "del_1", delivery.StatusPickupArrived)

	res, err := advanceStop(t, env, "drv_1", "del_1", 0, delivery.StopStatusInProgress)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "IN_PROGRESS", res.StopStatus)
	assert.Equal(t, "PICKUP_ARRIVED", res.DeliveryStatus, "stop moves do not move the parent")

	res, err = advanceStop(t, env, "drv_1", "del_1", 0, delivery.StopStatusCompleted)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	// sub-cycle cannot skip or rewind
	_, err = advanceStop(t, env, "drv_1", "del_1", 1, delivery.StopStatusCompleted)
	assert.ErrorIs(t, err, delivery.ErrInvalidStopTransition)
	_, err = advanceStop(t, env, "drv_1", "del_1", 0, delivery.StopStatusInProgress)
	assert.ErrorIs(t, err, delivery.ErrInvalidStopTransition)
}

func TestAdvanceStopUnknownPosition(t *testing.T) {
	env := newTestEnv(t, nil)
	assignMultiStop(t, env, "drv_1", "del_1", delivery.StatusPickupArrived)

	_, err := advanceStop(t, env, "drv_1", "del_1", 9, delivery.StopStatusInProgress)
	assert.ErrorIs(t, err, delivery.ErrStopNotFound)
}

func TestAdvanceStopOnSingleStopDelivery(t *testing.T) {
	env := newTestEnv(t, nil)
	assignDelivery(t, env, "drv_1", "del_1", delivery.StatusPickupArrived)

	_, err := advanceStop(t, env, "drv_1", "del_1", 0, delivery.StopStatusInProgress)
	assert.ErrorIs(t, err, delivery.ErrStopNotFound)
}

func TestInTransitRequiresAllPickupsCollected(t *testing.T) {
	env := newTestEnv(t, nil)
	assignMultiStop(t, env, "drv_1", "del_1", delivery.StatusPackageCollected)

	completeStop(t, env, "drv_1", "del_1", 0)

	// one pickup still open
	_, err := advance(t, env, "drv_1", "del_1", delivery.StatusInTransit)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)

	completeStop(t, env, "drv_1", "del_1", 1)

	res, err := advance(t, env, "drv_1", "del_1", delivery.StatusInTransit)
	require.NoError(t, err)
	assert.True(t, res.Applied)
}

func TestDeliveredRequiresFinalDropoff(t *testing.T) {
	env := newTestEnv(t, nil)
	assignMultiStop(t, env, "drv_1", "del_1", delivery.StatusPackageCollected)

	completeStop(t, env, "drv_1", "del_1", 0)
	completeStop(t, env, "drv_1", "del_1", 1)

	_, err := advance(t, env, "drv_1", "del_1", delivery.StatusInTransit)
	require.NoError(t, err)
	_, err = advance(t, env, "drv_1", "del_1", delivery.StatusAtDestination)
	require.NoError(t, err)

	// only the first dropoff is done; the parent cannot finish yet
	completeStop(t, env, "drv_1", "del_1", 2)
	_, err = advance(t, env, "drv_1", "del_1", delivery.StatusDelivered)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)

	completeStop(t, env, "drv_1", "del_1", 3)
	res, err := advance(t, env, "drv_1", "del_1", delivery.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	drv, err := env.drivers.GetByID(context.Background(), "drv_1")
	require.NoError(t, err)
	assert.Nil(t, drv.ActiveDeliveryID)
}

func TestAdvanceStopOnTerminalDelivery(t *testing.T) {
	env := newTestEnv(t, nil)
	assignMultiStop(t, env, "drv_1", "del_1", delivery.StatusPickupArrived)

	env.deliveries.mutate("del_1", func(d *delivery.Delivery) {
		d.Status = delivery.StatusCancelled
	})

	_, err := advanceStop(t, env, "drv_1", "del_1", 0, delivery.StopStatusInProgress)
	assert.ErrorIs(t, err, delivery.ErrTerminal)
}
