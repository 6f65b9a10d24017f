package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"courier-dispatch/internal/general/config"
	"courier-dispatch/internal/ports"
)

// positionTTL bounds how long a stale position stays useful. A driver that
// stopped reporting falls out of the cache instead of pinning an old point
// onto status broadcasts forever.
const positionTTL = 10 * time.Minute

// LocationCache stores the last-known device position per driver in Redis.
type LocationCache struct {
	client *redis.Client
}

// NewLocationCache connects to Redis and verifies the connection with a ping.
func NewLocationCache(ctx context.Context, cfg *config.Config) (*LocationCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &LocationCache{client: client}, nil
}

// Close releases the underlying Redis connection pool.
func (c *LocationCache) Close() error {
	return c.client.Close()
}

func positionKey(driverID string) string {
	return "driver:last_position:" + driverID
}

// SetLast overwrites the driver's last-known position.
func (c *LocationCache) SetLast(ctx context.Context, driverID string, loc ports.DriverLocation) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal driver location: %w", err)
	}

	if err := c.client.Set(ctx, positionKey(driverID), payload, positionTTL).Err(); err != nil {
		return fmt.Errorf("set driver location: %w", err)
	}

	return nil
}

// GetLast returns the driver's last-known position, or nil when none is
// cached.
func (c *LocationCache) GetLast(ctx context.Context, driverID string) (*ports.DriverLocation, error) {
	payload, err := c.client.Get(ctx, positionKey(driverID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get driver location: %w", err)
	}

	var loc ports.DriverLocation
	if err := json.Unmarshal(payload, &loc); err != nil {
		return nil, fmt.Errorf("unmarshal driver location: %w", err)
	}

	return &loc, nil
}
