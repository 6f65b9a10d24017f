package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/general/config"
	"courier-dispatch/internal/general/contracts"
	"courier-dispatch/internal/general/logger"
	"courier-dispatch/internal/general/retry"
	"courier-dispatch/internal/ports"

	"github.com/stretchr/testify/require"
)

// ---- in-memory fakes for the store, broker, cache and socket layers ----

type fakeUOW struct{}

func (fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeDriverRepo struct {
	mu   sync.Mutex
	rows map[string]*driver.Driver
}

func newFakeDriverRepo() *fakeDriverRepo {
	return &fakeDriverRepo{rows: make(map[string]*driver.Driver)}
}

func (r *fakeDriverRepo) CreateDriver(_ context.Context, d *driver.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[d.ID]; ok {
		return nil
	}
	row := *d
	r.rows[d.ID] = &row
	return nil
}

func (r *fakeDriverRepo) GetByID(_ context.Context, driverID string) (*driver.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[driverID]
	if !ok {
		return nil, errors.New("driver not found")
	}
	cp := *row
	return &cp, nil
}

func (r *fakeDriverRepo) UpdateAvailability(_ context.Context, driverID string, availability driver.Availability, toggledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[driverID]
	if !ok {
		return errors.New("driver not found")
	}
	row.Availability = availability
	at := toggledAt
	row.LastToggleAt = &at
	row.UpdatedAt = toggledAt
	return nil
}

func (r *fakeDriverRepo) SetActiveDelivery(_ context.Context, driverID string, deliveryID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[driverID]
	if !ok {
		return errors.New("driver not found")
	}
	if deliveryID == nil {
		row.ActiveDeliveryID = nil
	} else {
		id := *deliveryID
		row.ActiveDeliveryID = &id
	}
	return nil
}

func (r *fakeDriverRepo) ListByAvailability(_ context.Context, availability driver.Availability) ([]*driver.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*driver.Driver
	for _, row := range r.rows {
		if row.Availability == availability {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// seed installs a driver row directly, bypassing the upsert path.
func (r *fakeDriverRepo) seed(d driver.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[d.ID] = &d
}

type fakeDeliveryRepo struct {
	mu   sync.Mutex
	rows map[string]*delivery.Delivery

	// beforeConditional, when set, runs under the lock right before the
	// status check. Used to simulate a concurrent external write landing
	// between a read and the conditional update.
	beforeConditional func(rows map[string]*delivery.Delivery)
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{rows: make(map[string]*delivery.Delivery)}
}

func cloneDelivery(d *delivery.Delivery) *delivery.Delivery {
	cp := *d
	if d.AssignedDriverID != nil {
		id := *d.AssignedDriverID
		cp.AssignedDriverID = &id
	}
	cp.Stops = append([]delivery.Stop(nil), d.Stops...)
	return &cp
}

func (r *fakeDeliveryRepo) GetByID(_ context.Context, id string) (*delivery.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, errors.New("delivery not found")
	}
	return cloneDelivery(row), nil
}

func (r *fakeDeliveryRepo) GetActiveForDriver(_ context.Context, driverID string) (*delivery.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.AssignedTo(driverID) && row.Active() {
			return cloneDelivery(row), nil
		}
	}
	return nil, nil
}

func (r *fakeDeliveryRepo) FetchPending(_ context.Context, limit int) ([]*delivery.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*delivery.Delivery
	for _, row := range r.rows {
		if row.Status == delivery.StatusPending || row.Status == delivery.StatusOffered {
			out = append(out, cloneDelivery(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDeliveryRepo) ConditionalUpdateStatus(_ context.Context, id string, expected []delivery.Status, next delivery.Status, patch ports.StatusPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.beforeConditional != nil {
		hook := r.beforeConditional
		r.beforeConditional = nil
		hook(r.rows)
	}

	row, ok := r.rows[id]
	if !ok {
		return false, errors.New("delivery not found")
	}

	matched := false
	for _, s := range expected {
		if row.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}

	row.Status = next
	row.UpdatedAt = time.Now().UTC()
	if patch.AssignedDriverID != nil {
		idCp := *patch.AssignedDriverID
		row.AssignedDriverID = &idCp
	}
	if patch.CancelledReason != nil {
		reason := *patch.CancelledReason
		row.CancelledReason = &reason
	}
	return true, nil
}

// seed installs a delivery row directly.
func (r *fakeDeliveryRepo) seed(d *delivery.Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[d.ID] = cloneDelivery(d)
}

// mutate edits a stored row in place under the lock.
func (r *fakeDeliveryRepo) mutate(id string, fn func(d *delivery.Delivery)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		fn(row)
	}
}

type fakeStopRepo struct {
	deliveries *fakeDeliveryRepo
}

func (r *fakeStopRepo) ListByDelivery(_ context.Context, deliveryID string) ([]delivery.Stop, error) {
	r.deliveries.mu.Lock()
	defer r.deliveries.mu.Unlock()
	row, ok := r.deliveries.rows[deliveryID]
	if !ok {
		return nil, errors.New("delivery not found")
	}
	return append([]delivery.Stop(nil), row.Stops...), nil
}

func (r *fakeStopRepo) ConditionalUpdateStopStatus(_ context.Context, deliveryID string, position int, expected []delivery.StopStatus, next delivery.StopStatus) (bool, error) {
	r.deliveries.mu.Lock()
	defer r.deliveries.mu.Unlock()
	row, ok := r.deliveries.rows[deliveryID]
	if !ok {
		return false, errors.New("delivery not found")
	}
	for i := range row.Stops {
		if row.Stops[i].Position != position {
			continue
		}
		for _, s := range expected {
			if row.Stops[i].Status == s {
				row.Stops[i].Status = next
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

type fakeFeed struct{}

func (fakeFeed) Subscribe(ctx context.Context, _ func(ports.ChangeRow)) error {
	<-ctx.Done()
	return nil
}

type fakeConsumer struct{}

func (fakeConsumer) ConsumeJSON(ctx context.Context, _, _ string, _ int, _ func(context.Context, []byte) error) error {
	<-ctx.Done()
	return nil
}

type fakeLocationCache struct {
	mu      sync.Mutex
	rows    map[string]ports.DriverLocation
	failSet bool
}

func newFakeLocationCache() *fakeLocationCache {
	return &fakeLocationCache{rows: make(map[string]ports.DriverLocation)}
}

func (c *fakeLocationCache) SetLast(_ context.Context, driverID string, loc ports.DriverLocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet {
		return errors.New("redis: connection refused")
	}
	c.rows[driverID] = loc
	return nil
}

func (c *fakeLocationCache) setFailSet(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSet = fail
}

func (c *fakeLocationCache) GetLast(_ context.Context, driverID string) (*ports.DriverLocation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.rows[driverID]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

type published struct {
	Exchange   string
	RoutingKey string
	Body       []byte
}

type fakePublisher struct {
	mu      sync.Mutex
	records []published
	failAll bool
}

func (p *fakePublisher) Publish(exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("channel closed")
	}
	p.records = append(p.records, published{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func (p *fakePublisher) byExchange(exchange string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, rec := range p.records {
		if rec.Exchange == exchange {
			out = append(out, rec)
		}
	}
	return out
}

func (p *fakePublisher) setFailAll(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAll = fail
}

type fakeNotifier struct {
	mu            sync.Mutex
	offers        []contracts.WSDriverOffer
	statuses      []string // "{driver}:{delivery}:{status}"
	cancellations []string // "{driver}:{delivery}:{reason}"
	failAll       bool
}

func (n *fakeNotifier) NotifyOffer(_ string, offer contracts.WSDriverOffer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll {
		return errors.New("driver not connected")
	}
	n.offers = append(n.offers, offer)
	return nil
}

func (n *fakeNotifier) NotifyDeliveryStatus(driverID, deliveryID, status string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll {
		return errors.New("driver not connected")
	}
	n.statuses = append(n.statuses, driverID+":"+deliveryID+":"+status)
	return nil
}

func (n *fakeNotifier) NotifyCancellation(driverID, deliveryID, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll {
		return errors.New("driver not connected")
	}
	n.cancellations = append(n.cancellations, driverID+":"+deliveryID+":"+reason)
	return nil
}

func (n *fakeNotifier) IsDriverConnected(string) bool { return true }

func (n *fakeNotifier) cancellationCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.cancellations)
}

// ---- test environment ----

type testEnv struct {
	svc        *courierService
	drivers    *fakeDriverRepo
	deliveries *fakeDeliveryRepo
	cache      *fakeLocationCache
	pub        *fakePublisher
	notifier   *fakeNotifier
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Session.ToggleCooldownSeconds = 0
	cfg.Session.AcceptTimeoutSeconds = 5
	cfg.Session.AdvanceTimeoutSeconds = 5
	cfg.Session.ToggleTimeoutSeconds = 5
	cfg.Session.LocationPublishIntervalSeconds = 60
	cfg.Session.InboxSize = 32
	return cfg
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}

	drivers := newFakeDriverRepo()
	deliveries := newFakeDeliveryRepo()
	cache := newFakeLocationCache()
	pub := &fakePublisher{}
	notifier := &fakeNotifier{}

	svc := NewCourierService(
		logger.New("courier-service-test"),
		cfg,
		fakeUOW{},
		drivers,
		deliveries,
		&fakeStopRepo{deliveries: deliveries},
		fakeFeed{},
		cache,
		pub,
		fakeConsumer{},
		notifier,
		0,
	).(*courierService)

	// No real broker behind the fakes; skip the retry gap.
	svc.retry = retry.Policy{MaxAttempts: 2}.WithSleep(func(time.Duration) {})

	return &testEnv{
		svc:        svc,
		drivers:    drivers,
		deliveries: deliveries,
		cache:      cache,
		pub:        pub,
		notifier:   notifier,
	}
}

func (e *testEnv) goOnline(t *testing.T, driverID string) {
	t.Helper()
	res, err := e.svc.GoOnline(context.Background(), ports.GoOnlineInput{
		DriverID:  driverID,
		Latitude:  52.37,
		Longitude: 4.89,
	})
	require.NoError(t, err)
	require.Equal(t, "ONLINE", res.Availability)
}

func (e *testEnv) seedDelivery(t *testing.T, id string, status delivery.Status, assignedTo string) *delivery.Delivery {
	t.Helper()
	d, err := delivery.New(id, delivery.SourceMarketplace,
		delivery.GeoPoint{Lat: 52.0, Lng: 4.0, Address: "pickup"},
		delivery.GeoPoint{Lat: 52.1, Lng: 4.1, Address: "dropoff"})
	require.NoError(t, err)
	d.Status = status
	if assignedTo != "" {
		d.AssignedDriverID = &assignedTo
	}
	e.deliveries.seed(d)
	return d
}

// deliverOffer feeds one offer through the broker consumer path and waits for
// the session loop to pick it up.
func (e *testEnv) deliverOffer(t *testing.T, driverID, deliveryID, source string) {
	t.Helper()
	body, err := json.Marshal(contracts.OfferMessage{
		DeliveryID:       deliveryID,
		DriverID:         driverID,
		AssignmentSource: source,
		Pickup:           contracts.GeoPoint{Lat: 52.0, Lng: 4.0},
		Dropoff:          contracts.GeoPoint{Lat: 52.1, Lng: 4.1},
	})
	require.NoError(t, err)
	require.NoError(t, e.svc.handleOfferMessage(context.Background(), body))
	e.sync(t, driverID)
}

// sync flushes the session inbox by running one synchronous command after
// everything already posted.
func (e *testEnv) sync(t *testing.T, driverID string) ports.SessionSnapshot {
	t.Helper()
	snap, err := e.svc.Session(context.Background(), driverID)
	require.NoError(t, err)
	return snap
}
