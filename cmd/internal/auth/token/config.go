package token

import (
	"os"
	"strings"
	"time"
)

// Config holds credential lifetimes and key material.
type Config struct {
	// Issuer is written to the "iss" claim and enforced on verify when set.
	Issuer string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// PrivateKey and PublicKey are inline PEM or file paths.
	PrivateKey string
	PublicKey  string
}

// DefaultConfig returns a one-day access and seven-day refresh lifetime.
func DefaultConfig() Config {
	return Config{
		Issuer:     "huddle",
		AccessTTL:  24 * time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// HasKeys reports whether key material was configured.
func (c Config) HasKeys() bool {
	return strings.TrimSpace(c.PrivateKey) != "" && strings.TrimSpace(c.PublicKey) != ""
}

// LoadConfigFromEnv overlays environment variables on DefaultConfig.
//
// Optional:
//   - HUDDLE_JWT_ISSUER
//   - HUDDLE_ACCESS_TTL, HUDDLE_REFRESH_TTL (Go durations, whole seconds)
//   - HUDDLE_JWT_PRIVATE_KEY, HUDDLE_JWT_PUBLIC_KEY (PEM or path; both or neither)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("HUDDLE_JWT_ISSUER"); ok {
		cfg.Issuer = strings.TrimSpace(v)
	}

	if v := os.Getenv("HUDDLE_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || !validTTL(d) {
			return Config{}, ErrConfig
		}
		cfg.AccessTTL = d
	}

	if v := os.Getenv("HUDDLE_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || !validTTL(d) {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	cfg.PrivateKey = os.Getenv("HUDDLE_JWT_PRIVATE_KEY")
	cfg.PublicKey = os.Getenv("HUDDLE_JWT_PUBLIC_KEY")
	if (strings.TrimSpace(cfg.PrivateKey) == "") != (strings.TrimSpace(cfg.PublicKey) == "") {
		return Config{}, ErrConfig
	}

	// A refresh credential that dies before its access credential is useless.
	if cfg.RefreshTTL < cfg.AccessTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
