package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseYAML parses the specific two-level mapping used by config.yaml
func parseYAML(r io.Reader, cfg *Config) error {
	type section int
	const (
		none section = iota
		db
		rm
		rd
		ws
		sv
		jw
		se
	)

	scanner := bufio.NewScanner(r)
	var cur section

	lineNo := 0
	seenTop := map[section]bool{}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		// strip comments
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}

		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// top-level section? (no leading spaces)
		if len(line) > 0 && (line[0] != ' ' && line[0] != '\t') {
			var next section
			switch strings.TrimSpace(line) {
			case "database:":
				next = db
			case "rabbitmq:":
				next = rm
			case "redis:":
				next = rd
			case "websocket:":
				next = ws
			case "services:":
				next = sv
			case "jwt:":
				next = jw
			case "session:":
				next = se
			default:
				return fmt.Errorf("line %d: unknown top-level key %q", lineNo, strings.TrimSuffix(strings.TrimSpace(line), ":"))
			}
			if seenTop[next] {
				return fmt.Errorf("line %d: duplicate %q section", lineNo, strings.TrimSuffix(strings.TrimSpace(line), ":"))
			}
			seenTop[next] = true
			cur = next
			continue
		}

		// expect indented "key: value"
		if cur == none {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}
		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := strings.TrimLeft(strings.TrimSpace(trim[colon+1:]), " \t")

		switch cur {
		case db:
			switch key {
			case "host":
				cfg.Database.Host = resolveScalar(val)
			case "port":
				p, err := parseIntValue("database.port", val, lineNo)
				if err != nil {
					return err
				}
				cfg.Database.Port = p
			case "user":
				cfg.Database.User = resolveScalar(val)
			case "password":
				cfg.Database.Password = resolveScalar(val)
			case "database":
				cfg.Database.Name = resolveScalar(val)
			default:
				return fmt.Errorf("line %d: unknown key in database: %q", lineNo, key)
			}
		case rm:
			switch key {
			case "host":
				cfg.RabbitMQ.Host = resolveScalar(val)
			case "port":
				p, err := parseIntValue("rabbitmq.port", val, lineNo)
				if err != nil {
					return err
				}
				cfg.RabbitMQ.Port = p
			case "user":
				cfg.RabbitMQ.User = resolveScalar(val)
			case "password":
				cfg.RabbitMQ.Password = resolveScalar(val)
			default:
				return fmt.Errorf("line %d: unknown key in rabbitmq: %q", lineNo, key)
			}
		case rd:
			switch key {
			case "host":
				cfg.Redis.Host = resolveScalar(val)
			case "port":
				p, err := parseIntValue("redis.port", val, lineNo)
				if err != nil {
					return err
				}
				cfg.Redis.Port = p
			default:
				return fmt.Errorf("line %d: unknown key in redis: %q", lineNo, key)
			}
		case ws:
			switch key {
			case "port":
				p, err := parseIntValue("websocket.port", val, lineNo)
				if err != nil {
					return err
				}
				cfg.WebSocket.Port = p
			default:
				return fmt.Errorf("line %d: unknown key in websocket: %q", lineNo, key)
			}
		case sv:
			switch key {
			case "courier_service":
				p, err := parseIntValue("services.courier_service", val, lineNo)
				if err != nil {
					return err
				}
				cfg.Services.CourierServicePort = p
			default:
				return fmt.Errorf("line %d: unknown key in services: %q", lineNo, key)
			}
		case jw:
			switch key {
			case "secret_key":
				cfg.JWT.SecretKey = resolveScalar(val)
			default:
				return fmt.Errorf("line %d: unknown key in jwt: %q", lineNo, key)
			}
		case se:
			switch key {
			case "toggle_cooldown_seconds":
				p, err := parseIntValue("session.toggle_cooldown_seconds", val, lineNo)
				if err != nil {
					return err
				}
				cfg.Session.ToggleCooldownSeconds = p
			case "accept_timeout_seconds":
				p, err := parseIntValue("session.accept_timeout_seconds", val, lineNo)
				if err != nil {
					return err
				}
				cfg.Session.AcceptTimeoutSeconds = p
			case "advance_timeout_seconds":
				p, err := parseIntValue("session.advance_timeout_seconds", val, lineNo)
				if err != nil {
					return err
				}
				cfg.Session.AdvanceTimeoutSeconds = p
			case "toggle_timeout_seconds":
				p, err := parseIntValue("session.toggle_timeout_seconds", val, lineNo)
				if err != nil {
					return err
				}
				cfg.Session.ToggleTimeoutSeconds = p
			case "location_publish_interval_seconds":
				p, err := parseIntValue("session.location_publish_interval_seconds", val, lineNo)
				if err != nil {
					return err
				}
				cfg.Session.LocationPublishIntervalSeconds = p
			case "inbox_size":
				p, err := parseIntValue("session.inbox_size", val, lineNo)
				if err != nil {
					return err
				}
				cfg.Session.InboxSize = p
			default:
				return fmt.Errorf("line %d: unknown key in session: %q", lineNo, key)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

// parseIntValue converts a YAML-like scalar to int with a located error.
func parseIntValue(field, val string, lineNo int) (int, error) {
	p, err := strconv.Atoi(resolveScalar(val))
	if err != nil {
		return 0, fmt.Errorf("line %d: %s must be int: %v", lineNo, field, err)
	}
	return p, nil
}

// resolveScalar trims whitespace and removes surrounding quotes from YAML-like scalars.
// For example:
//
//	"localhost"  -> localhost
//	'password123' -> password123
//	localhost     -> localhost
//
// This ensures values like jwt.secret_key are not stored with extra quotes.
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	// if value is quoted with "..." or '...', remove quotes safely
	n := len(s)
	if n >= 2 {
		if (s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'') {
			if unq, err := strconv.Unquote(s); err == nil {
				return unq
			}
			// fallback if strconv.Unquote fails (e.g., mismatched quotes)
			return s[1 : n-1]
		}
	}

	return s
}
