package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Redis struct {
		Host string
		Port int
	}
	WebSocket struct {
		Port int
	}
	Services struct {
		CourierServicePort int
	}
	JWT struct {
		SecretKey string `yaml:"secret_key"`
	}
	Session struct {
		ToggleCooldownSeconds          int
		AcceptTimeoutSeconds           int
		AdvanceTimeoutSeconds          int
		ToggleTimeoutSeconds           int
		LocationPublishIntervalSeconds int
		InboxSize                      int
	}
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ToggleCooldown returns the session toggle debounce window.
func (c *Config) ToggleCooldown() time.Duration {
	return time.Duration(c.Session.ToggleCooldownSeconds) * time.Second
}

// AcceptTimeout bounds the offer-accept conditional write.
func (c *Config) AcceptTimeout() time.Duration {
	return time.Duration(c.Session.AcceptTimeoutSeconds) * time.Second
}

// AdvanceTimeout bounds a stage-advance conditional write.
func (c *Config) AdvanceTimeout() time.Duration {
	return time.Duration(c.Session.AdvanceTimeoutSeconds) * time.Second
}

// ToggleTimeout bounds an online/offline toggle.
func (c *Config) ToggleTimeout() time.Duration {
	return time.Duration(c.Session.ToggleTimeoutSeconds) * time.Second
}

// LocationPublishInterval is the minimum gap between location republishes.
func (c *Config) LocationPublishInterval() time.Duration {
	return time.Duration(c.Session.LocationPublishIntervalSeconds) * time.Second
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Redis
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	// WebSocket
	if cfg.WebSocket.Port == 0 {
		cfg.WebSocket.Port = 8080
	}

	// Services
	if cfg.Services.CourierServicePort == 0 {
		cfg.Services.CourierServicePort = 3000
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}

	// Session
	if cfg.Session.ToggleCooldownSeconds == 0 {
		cfg.Session.ToggleCooldownSeconds = 3
	}
	if cfg.Session.AcceptTimeoutSeconds == 0 {
		cfg.Session.AcceptTimeoutSeconds = 10
	}
	if cfg.Session.AdvanceTimeoutSeconds == 0 {
		cfg.Session.AdvanceTimeoutSeconds = 10
	}
	if cfg.Session.ToggleTimeoutSeconds == 0 {
		cfg.Session.ToggleTimeoutSeconds = 5
	}
	if cfg.Session.LocationPublishIntervalSeconds == 0 {
		cfg.Session.LocationPublishIntervalSeconds = 5
	}
	if cfg.Session.InboxSize == 0 {
		cfg.Session.InboxSize = 64
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Redis
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		problems = append(problems, "redis.port must be in 1..65535")
	}

	// WebSocket
	if c.WebSocket.Port <= 0 || c.WebSocket.Port > 65535 {
		problems = append(problems, "websocket.port must be in 1..65535")
	}

	// Services
	if c.Services.CourierServicePort <= 0 || c.Services.CourierServicePort > 65535 {
		problems = append(problems, "services.courier_service must be in 1..65535")
	}

	// Session
	if c.Session.ToggleCooldownSeconds < 0 {
		problems = append(problems, "session.toggle_cooldown_seconds cannot be negative")
	}
	if c.Session.InboxSize < 1 {
		problems = append(problems, "session.inbox_size must be >= 1")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
