package service

import (
	"context"
	"encoding/json"
	"testing"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/general/contracts"
	"courier-dispatch/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assignDelivery binds a seeded delivery to an online driver and primes the
// session cache through the refresh read.
func assignDelivery(t *testing.T, env *testEnv, driverID, deliveryID string, status delivery.Status) {
	t.Helper()
	env.goOnline(t, driverID)
	env.seedDelivery(t, deliveryID, status, driverID)
	require.NoError(t, env.drivers.SetActiveDelivery(context.Background(), driverID, &deliveryID))

	res, err := env.svc.RefreshActiveDelivery(context.Background(), driverID)
	require.NoError(t, err)
	require.NotNil(t, res.Delivery)
	require.Equal(t, deliveryID, res.Delivery.ID)
}

func advance(t *testing.T, env *testEnv, driverID, deliveryID string, next delivery.Status) (ports.AdvanceStageResult, error) {
	t.Helper()
	return env.svc.AdvanceStage(context.Background(), ports.AdvanceStageInput{
		DriverID: driverID, DeliveryID: deliveryID, NewStage: next,
	})
}

func TestAdvanceStageWalksTheFullChain(t *testing.T) {
	env := newTestEnv(t, nil)
	assignDelivery(t, env, "drv_1", "del_1", delivery.StatusAssigned)

	chain := []delivery.Status{
		delivery.StatusPickupArrived, delivery.StatusPackageCollected,
		delivery.StatusInTransit, delivery.StatusAtDestination, delivery.StatusDelivered,
	}
	for _, next := range chain {
		res, err := advance(t, env, "drv_1", "del_1", next)
		require.NoError(t, err, "advance to %s", next)
		assert.True(t, res.Applied)
		assert.Equal(t, next.String(), res.Status)
	}

	row, err := env.deliveries.GetByID(context.Background(), "del_1")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusDelivered, row.Status)

	// completion unbinds the driver
	drv, err := env.drivers.GetByID(context.Background(), "drv_1")
	require.NoError(t, err)
	assert.Nil(t, drv.ActiveDeliveryID)
	snap := env.sync(t, "drv_1")
	assert.Nil(t, snap.ActiveDeliveryID)
	assert.Equal(t, "ONLINE", snap.Availability, "driver stays online for the next job")
}

func TestAdvanceStageRejectsBackwardAndSkipped(t *testing.T) {
	env := newTestEnv(t, nil)
	assignDelivery(t, env, "drv_1", "del_1", delivery.StatusPackageCollected)

	_, err := advance(t, env, "drv_1", "del_1", delivery.StatusPickupArrived)
	assert.ErrorIs(t, err, ports.ErrBackwardTransition)

	_, err = advance(t, env, "drv_1", "del_1", delivery.StatusPackageCollected)
	assert.ErrorIs(t, err, ports.ErrBackwardTransition)

	_, err = advance(t, env, "drv_1", "del_1", delivery.StatusAtDestination)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)

	// the row is untouched by rejected advances
	row, err := env.deliveries.GetByID(context.Background(), "del_1")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusPackageCollected, row.Status)
}

func TestAdvanceStageRejectsCancelTarget(t *testing.T) {
	env := newTestEnv(t, nil)
	assignDelivery(t, env, "drv_1", "del_1", delivery.StatusAssigned)

	_, err := advance(t, env, "drv_1", "del_1", delivery.StatusCancelled)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)
}

func TestAdvanceStageBroadcastGating(t *testing.T) {
	env := newTestEnv(t, nil)
	assignDelivery(t, env, "drv_1", "del_1", delivery.StatusAssigned)

	require.Empty(t, env.pub.byExchange(contracts.ExchangeDeliveryTopic))

	_, err := advance(t, env, "drv_1", "del_1", delivery.StatusPickupArrived)
	require.NoError(t, err)

	recs := env.pub.byExchange(contracts.ExchangeDeliveryTopic)
	require.Len(t, recs, 1)
	assert.Equal(t, "delivery.status.PICKUP_ARRIVED", recs[0].RoutingKey)

	// the broadcast carries the last cached position
	var msg contracts.DeliveryStatusMessage
	require.NoError(t, json.Unmarshal(recs[0].Body, &msg))
	assert.Equal(t, "del_1", msg.DeliveryID)
	require.NotNil(t, msg.DriverLocation)
	assert.Equal(t, 52.37, msg.DriverLocation.Lat)

	// the driver app gets the same transition over the socket
	env.notifier.mu.Lock()
	statuses := append([]string(nil), env.notifier.statuses...)
	env.notifier.mu.Unlock()
	require.Len(t, statuses, 1)
	assert.Equal(t, "drv_1:del_1:PICKUP_ARRIVED", statuses[0])
}

func TestAdvanceStageRequiresActiveDelivery(t *testing.T) {
	env := newTestEnv(t, nil)
	env.goOnline(t, "drv_1")
	env.seedDelivery(t, "del_1", delivery.StatusAssigned, "drv_other")

	_, err := advance(t, env, "drv_1", "del_1", delivery.StatusPickupArrived)
	assert.ErrorIs(t, err, ports.ErrNoActiveDelivery)
}

func TestAdvanceStageOnCancelledDelivery(t *testing.T) {
	env := newTestEnv(t, nil)
	assignDelivery(t, env, "drv_1", "del_1", delivery.StatusInTransit)

	// cancelled externally after the session cached the binding
	env.deliveries.mutate("del_1", func(d *delivery.Delivery) {
		d.Status = delivery.StatusCancelled
	})

	_, err := advance(t, env, "drv_1", "del_1", delivery.StatusAtDestination)
	assert.ErrorIs(t, err, delivery.ErrTerminal)
}

func TestAdvanceStageLosesRaceToCancellation(t *testing.T) {
	env := newTestEnv(t, nil)
	assignDelivery(t, env, "drv_1", "del_1", delivery.StatusInTransit)

	// the external write lands between the read and the conditional update
	env.deliveries.mu.Lock()
	env.deliveries.beforeConditional = func(rows map[string]*delivery.Delivery) {
		rows["del_1"].Status = delivery.StatusCancelled
	}
	env.deliveries.mu.Unlock()

	_, err := advance(t, env, "drv_1", "del_1", delivery.StatusAtDestination)
	assert.ErrorIs(t, err, delivery.ErrTerminal)

	row, err := env.deliveries.GetByID(context.Background(), "del_1")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCancelled, row.Status, "cancellation wins, no partial advance")
}
