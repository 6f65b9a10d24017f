package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
database:
  host: "db.internal"
  port: 5433
  user: courier
  password: 'secret'
  database: dispatch

rabbitmq:
  host: mq.internal
  port: 5672
  user: guest
  password: guest

redis:
  host: cache.internal
  port: 6380

websocket:
  port: 8081

services:
  courier_service: 3100

jwt:
  secret_key: "test-secret"

session:
  toggle_cooldown_seconds: 2
  accept_timeout_seconds: 8
  advance_timeout_seconds: 12
  toggle_timeout_seconds: 4
  location_publish_interval_seconds: 7
  inbox_size: 32
`

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "courier", cfg.Database.User)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "dispatch", cfg.Database.Name)

	assert.Equal(t, "mq.internal", cfg.RabbitMQ.Host)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, 8081, cfg.WebSocket.Port)
	assert.Equal(t, 3100, cfg.Services.CourierServicePort)
	assert.Equal(t, "test-secret", cfg.JWT.SecretKey)

	assert.Equal(t, 2*time.Second, cfg.ToggleCooldown())
	assert.Equal(t, 8*time.Second, cfg.AcceptTimeout())
	assert.Equal(t, 12*time.Second, cfg.AdvanceTimeout())
	assert.Equal(t, 4*time.Second, cfg.ToggleTimeout())
	assert.Equal(t, 7*time.Second, cfg.LocationPublishInterval())
	assert.Equal(t, 32, cfg.Session.InboxSize)
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, `
database:
  user: courier
  password: secret
  database: dispatch

rabbitmq:
  user: guest
  password: guest
`))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 3000, cfg.Services.CourierServicePort)
	assert.NotEmpty(t, cfg.JWT.SecretKey, "a secret is generated when none is set")

	assert.Equal(t, 3*time.Second, cfg.ToggleCooldown())
	assert.Equal(t, 10*time.Second, cfg.AcceptTimeout())
	assert.Equal(t, 5*time.Second, cfg.LocationPublishInterval())
	assert.Equal(t, 64, cfg.Session.InboxSize)
}

func TestLoadFromFileValidatesRequiredFields(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, `
database:
  host: localhost
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.user is required")
	assert.Contains(t, err.Error(), "rabbitmq.user is required")
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseYAMLRejectsUnknownKeys(t *testing.T) {
	var cfg Config
	err := parseYAML(strings.NewReader(`
database:
  hostt: localhost
`), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key in database")

	err = parseYAML(strings.NewReader("flags:\n  debug: true\n"), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown top-level key")
}

func TestParseYAMLRejectsDuplicateSections(t *testing.T) {
	var cfg Config
	err := parseYAML(strings.NewReader(`
redis:
  port: 6379
redis:
  port: 6380
`), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParseYAMLStripsCommentsAndQuotes(t *testing.T) {
	var cfg Config
	err := parseYAML(strings.NewReader(`
jwt:
  secret_key: 'quoted value'  # inline comment
`), &cfg)
	require.NoError(t, err)
	assert.Equal(t, "quoted value", cfg.JWT.SecretKey)
}

func TestParseYAMLRejectsBadInt(t *testing.T) {
	var cfg Config
	err := parseYAML(strings.NewReader(`
redis:
  port: sixthousand
`), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.port must be int")
}
