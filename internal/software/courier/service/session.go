package service

import (
	"context"
	"time"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/domain/driver"
	"courier-dispatch/internal/general/contracts"
	"courier-dispatch/internal/ports"
)

// session is a per-driver coordinator. All session state lives on its loop
// goroutine and is touched only by posted commands, so no operation for one
// driver ever races another.
type session struct {
	driverID string
	inbox    chan func(context.Context)

	// loop-owned state; never read outside posted commands.
	loaded           bool
	availability     driver.Availability
	activeDeliveryID *string
	lastToggleAt     *time.Time
	offers           map[string]pendingOffer // key: delivery_id
	cancelNotified   map[string]bool         // one notice per cancelled delivery
	lastPublishAt    time.Time
}

// pendingOffer is local inbox state for one relayed offer.
type pendingOffer struct {
	OfferID  string
	Source   delivery.AssignmentSource
	Received time.Time
	Msg      contracts.OfferMessage
}

// sessionFor returns (creating if needed) the coordinator for a driver and
// starts its loop on the background context.
func (service *courierService) sessionFor(driverID string) *session {
	service.mu.Lock()
	defer service.mu.Unlock()

	if s, ok := service.sessions[driverID]; ok {
		return s
	}

	s := &session{
		driverID:       driverID,
		inbox:          make(chan func(context.Context), service.cfg.Session.InboxSize),
		offers:         make(map[string]pendingOffer),
		cancelNotified: make(map[string]bool),
	}
	service.sessions[driverID] = s

	go s.run(service.bgCtx)
	return s
}

// run executes posted commands serially until ctx is done.
func (s *session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.inbox:
			cmd(ctx)
		}
	}
}

// post enqueues a command without blocking. A full inbox is surfaced as
// ErrSessionBusy instead of head-of-line blocking the caller.
func (s *session) post(cmd func(context.Context)) error {
	select {
	case s.inbox <- cmd:
		return nil
	default:
		return ports.ErrSessionBusy
	}
}

// entity materializes the loop-owned caches as the domain entity so that
// availability and binding transitions run through its guards. Only call from
// the loop; apply the mutated copy back with applyEntity.
func (s *session) entity() driver.Driver {
	return driver.Driver{
		ID:               s.driverID,
		Availability:     s.availability,
		ActiveDeliveryID: s.activeDeliveryID,
		LastToggleAt:     s.lastToggleAt,
	}
}

func (s *session) applyEntity(d driver.Driver) {
	s.availability = d.Availability
	s.activeDeliveryID = d.ActiveDeliveryID
	s.lastToggleAt = d.LastToggleAt
}

// call posts a command and waits for its completion or the deadline. The
// command still runs to completion on the loop even if the caller gives up
// waiting.
func (service *courierService) call(ctx context.Context, s *session, timeout time.Duration, fn func(context.Context) error) error {
	done := make(chan error, 1)

	err := s.post(func(loopCtx context.Context) {
		done <- fn(loopCtx)
	})
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureLoaded lazily primes the loop-owned caches from the drivers table.
// The driver row is upserted on first contact; drivers come into existence at
// authentication and start OFFLINE.
func (service *courierService) ensureLoaded(ctx context.Context, s *session) error {
	if s.loaded {
		return nil
	}

	return service.uow.WithinTx(ctx, func(ctx context.Context) error {
		d, err := driver.NewDriver(s.driverID)
		if err != nil {
			return err
		}
		if err := service.drivers.CreateDriver(ctx, d); err != nil {
			return err
		}

		row, err := service.drivers.GetByID(ctx, s.driverID)
		if err != nil {
			return err
		}

		s.availability = row.Availability
		s.activeDeliveryID = row.ActiveDeliveryID
		s.lastToggleAt = row.LastToggleAt
		s.loaded = true
		return nil
	})
}
