package realtime

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"huddle/cmd/internal/presence"
)

// ErrConfig is returned for invalid gateway configuration.
var ErrConfig = errors.New("invalid realtime config")

// Config tunes the websocket gateway.
type Config struct {
	// OriginRequired rejects handshakes without an Origin header.
	OriginRequired bool
	AllowedOrigins []string

	// DevInsecure disables the library's own origin verification. Dev only.
	DevInsecure bool

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration

	// TypingExpiry is how long a typing indicator stays on without a refresh.
	TypingExpiry time.Duration
}

// DefaultConfig allows localhost origins only.
func DefaultConfig() Config {
	return Config{
		OriginRequired:   true,
		AllowedOrigins:   splitCSV(defaultAllowedOrigins),
		WriteTimeout:     defaultWriteTimeout,
		ReadIdleTimeout:  defaultReadIdle,
		SendQueueSize:    defaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
		TypingExpiry:     presence.TypingQuietWindow,
	}
}

// LoadConfigFromEnv overlays HUDDLE_WS_* variables on DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	bools := []struct {
		key string
		dst *bool
	}{
		{"HUDDLE_WS_ORIGIN_REQUIRED", &cfg.OriginRequired},
		{"HUDDLE_WS_DEV_INSECURE", &cfg.DevInsecure},
	}
	for _, b := range bools {
		if v := strings.TrimSpace(os.Getenv(b.key)); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return Config{}, ErrConfig
			}
			*b.dst = parsed
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"HUDDLE_WS_WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"HUDDLE_WS_READ_IDLE_TIMEOUT", &cfg.ReadIdleTimeout},
		{"HUDDLE_WS_HEARTBEAT_INTERVAL", &cfg.HeartbeatEvery},
		{"HUDDLE_WS_HEARTBEAT_TIMEOUT", &cfg.HeartbeatTimeout},
		{"HUDDLE_WS_RATE_WINDOW", &cfg.RateWindow},
		{"HUDDLE_WS_TYPING_EXPIRY", &cfg.TypingExpiry},
	}
	for _, d := range durations {
		if v := strings.TrimSpace(os.Getenv(d.key)); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil || parsed <= 0 {
				return Config{}, ErrConfig
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"HUDDLE_WS_SEND_QUEUE", &cfg.SendQueueSize},
		{"HUDDLE_WS_RATE_EVENTS", &cfg.RateEvents},
	}
	for _, n := range ints {
		if v := strings.TrimSpace(os.Getenv(n.key)); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				return Config{}, ErrConfig
			}
			*n.dst = parsed
		}
	}

	if v, ok := os.LookupEnv("HUDDLE_WS_ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if cfg.SendQueueSize < minSendQueueSize {
		cfg.SendQueueSize = minSendQueueSize
	}
	return cfg, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
