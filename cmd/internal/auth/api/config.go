package authapi

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"huddle/cmd/internal/httpx"
)

// ErrConfig is returned for invalid auth API configuration.
var ErrConfig = errors.New("invalid auth api config")

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	CookieSecure bool
	CookieDomain string
	CookiePath   string

	// Per client IP token buckets: Max attempts refilled over Window.
	LoginIPMax     int
	LoginIPWindow  time.Duration
	SignupIPMax    int
	SignupIPWindow time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   httpx.DefaultMaxBodyBytes,
		CookieSecure:   true,
		CookiePath:     "/",
		LoginIPMax:     20,
		LoginIPWindow:  5 * time.Minute,
		SignupIPMax:    5,
		SignupIPWindow: time.Hour,
	}
}

// LoadConfigFromEnv overlays HUDDLE_AUTH_* and HUDDLE_COOKIE_* variables on
// DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"HUDDLE_AUTH_TRUST_PROXY", &cfg.TrustProxy},
		{"HUDDLE_COOKIE_SECURE", &cfg.CookieSecure},
	} {
		if v := strings.TrimSpace(os.Getenv(b.key)); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return Config{}, fmt.Errorf("%w: %s", ErrConfig, b.key)
			}
			*b.dst = parsed
		}
	}

	for _, n := range []struct {
		key string
		dst *int
	}{
		{"HUDDLE_AUTH_LOGIN_IP_MAX", &cfg.LoginIPMax},
		{"HUDDLE_AUTH_SIGNUP_IP_MAX", &cfg.SignupIPMax},
	} {
		if v := strings.TrimSpace(os.Getenv(n.key)); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				return Config{}, fmt.Errorf("%w: %s", ErrConfig, n.key)
			}
			*n.dst = parsed
		}
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"HUDDLE_AUTH_LOGIN_IP_WINDOW", &cfg.LoginIPWindow},
		{"HUDDLE_AUTH_SIGNUP_IP_WINDOW", &cfg.SignupIPWindow},
	} {
		if v := strings.TrimSpace(os.Getenv(d.key)); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil || parsed <= 0 {
				return Config{}, fmt.Errorf("%w: %s", ErrConfig, d.key)
			}
			*d.dst = parsed
		}
	}

	if v := strings.TrimSpace(os.Getenv("HUDDLE_AUTH_MAX_BODY_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%w: HUDDLE_AUTH_MAX_BODY_BYTES", ErrConfig)
		}
		cfg.MaxBodyBytes = n
	}
	cfg.CookieDomain = strings.TrimSpace(os.Getenv("HUDDLE_COOKIE_DOMAIN"))

	return cfg, nil
}
