package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigFile names the optional config file path variable.
const EnvConfigFile = "HUDDLE_CONFIG"

// Config contains the process-level runtime configuration. Subsystems
// (credentials, auth endpoints, realtime gateway) read their own HUDDLE_*
// variables; LoadConfig publishes their keys from the config file there.
type Config struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	ReadHeaderTimeout time.Duration `mapstructure:"http_read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"http_read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"http_write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"http_idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"http_max_header_bytes"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`

	DatabaseURL   string `mapstructure:"database_url"`
	DBMaxConns    int32  `mapstructure:"db_max_conns"`
	DBMinConns    int32  `mapstructure:"db_min_conns"`
	DBSchema      string `mapstructure:"db_schema"`
	DBAutoMigrate bool   `mapstructure:"db_auto_migrate"`

	RedisURL string `mapstructure:"redis_url"`

	// If true /readyz returns 503 unless the database is configured and reachable.
	ReadinessRequireDB bool `mapstructure:"readiness_require_db"`

	// If true HUDDLE_TOKEN_HMAC_KEY must be set (>= 32 bytes).
	RequireTokenHMAC bool `mapstructure:"require_token_hmac"`

	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`
	CORSMaxAgeSeconds    int      `mapstructure:"cors_max_age_seconds"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

var defaults = map[string]any{
	"http_addr":                "0.0.0.0:8080",
	"log_level":                "info",
	"log_format":               "json",
	"http_read_header_timeout": 5 * time.Second,
	"http_read_timeout":        15 * time.Second,
	"http_write_timeout":       15 * time.Second,
	"http_idle_timeout":        60 * time.Second,
	"http_max_header_bytes":    1 << 20,
	"shutdown_timeout":         10 * time.Second,
	"database_url":             "",
	"db_max_conns":             10,
	"db_min_conns":             0,
	"db_schema":                "huddle",
	"db_auto_migrate":          false,
	"redis_url":                "",
	"readiness_require_db":     false,
	"require_token_hmac":       false,
	"cors_allowed_origins":     []string{"http://localhost:*", "http://127.0.0.1:*"},
	"cors_allow_credentials":   true,
	"cors_max_age_seconds":     600,
	"metrics_enabled":          true,
}

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// LoadConfig reads defaults, then the config file at path (or HUDDLE_CONFIG
// when path is empty), then HUDDLE_* environment variables.
//
// File keys outside Config (access_ttl, jwt_private_key, ws.send_queue
// and so on) are exported as the matching HUDDLE_* variable unless that
// variable is already non-empty.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigFile))
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := exportFileKeys(v); err != nil {
			return Config{}, fmt.Errorf("export config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func exportFileKeys(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		if _, own := defaults[key]; own || !v.InConfig(key) {
			continue
		}
		name := "HUDDLE_" + strings.ToUpper(envKeyReplacer.Replace(key))
		if strings.TrimSpace(os.Getenv(name)) != "" {
			continue
		}
		if err := os.Setenv(name, envValue(v.Get(key))); err != nil {
			return err
		}
	}
	return nil
}

// envValue renders a decoded file value the way the env readers parse it.
// Lists become CSV.
func envValue(val any) string {
	switch x := val.(type) {
	case []any:
		parts := make([]string, 0, len(x))
		for _, p := range x {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(x, ",")
	default:
		return fmt.Sprint(x)
	}
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		errs = append(errs, fmt.Errorf("db conns invalid: min=%d max=%d", c.DBMinConns, c.DBMaxConns))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want json, pretty or text", c.LogFormat))
	}
	return errors.Join(errs...)
}
