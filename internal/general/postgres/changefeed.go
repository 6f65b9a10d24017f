package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/domain/delivery"
	"courier-dispatch/internal/general/logger"
	"courier-dispatch/internal/ports"
)

const changeChannel = "delivery_changes"

// changePayload mirrors the JSON built by the deliveries_notify trigger.
type changePayload struct {
	ID               string  `json:"id"`
	OldStatus        string  `json:"old_status"`
	NewStatus        string  `json:"new_status"`
	AssignedDriverID *string `json:"assigned_driver_id"`
	CancelledReason  *string `json:"cancelled_reason"`
}

// ChangeFeed listens on the delivery_changes notification channel and turns
// each payload into a ports.ChangeRow. It holds one dedicated connection from
// the pool for the lifetime of a subscription and re-acquires it with backoff
// after connection loss.
type ChangeFeed struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewChangeFeed constructs a change feed over the given pool.
func NewChangeFeed(pool *pgxpool.Pool, log *logger.Logger) *ChangeFeed {
	return &ChangeFeed{pool: pool, logger: log}
}

// Subscribe blocks until ctx is done, delivering each observed row mutation to
// the handler. Malformed payloads are logged and skipped.
func (f *ChangeFeed) Subscribe(ctx context.Context, handler func(ports.ChangeRow)) error {
	backoff := time.Second
	for {
		if err := f.listen(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Error(ctx, "changefeed_listen", "change feed connection lost, reconnecting", err, map[string]interface{}{
				"backoff": backoff.String(),
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		return nil
	}
}

func (f *ChangeFeed) listen(ctx context.Context, handler func(ports.ChangeRow)) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", changeChannel, err)
	}

	f.logger.Info(ctx, "changefeed_listen", "listening for delivery changes", map[string]interface{}{
		"channel": changeChannel,
	})

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		var payload changePayload
		if err := json.Unmarshal([]byte(notification.Payload), &payload); err != nil {
			f.logger.Error(ctx, "changefeed_decode", "skipping malformed change payload", err, map[string]interface{}{
				"payload": notification.Payload,
			})
			continue
		}

		oldStatus, err := delivery.ParseStatus(payload.OldStatus)
		if err != nil {
			f.logger.Error(ctx, "changefeed_decode", "skipping change with unknown old status", err, nil)
			continue
		}
		newStatus, err := delivery.ParseStatus(payload.NewStatus)
		if err != nil {
			f.logger.Error(ctx, "changefeed_decode", "skipping change with unknown new status", err, nil)
			continue
		}

		handler(ports.ChangeRow{
			DeliveryID:       payload.ID,
			OldStatus:        oldStatus,
			NewStatus:        newStatus,
			AssignedDriverID: payload.AssignedDriverID,
			CancelledReason:  payload.CancelledReason,
		})
	}
}
