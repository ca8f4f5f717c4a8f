package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultHeartbeatInterval is how often clients heartbeat a confirmed
// session. The service expires a session after three missed heartbeats.
const DefaultHeartbeatInterval = 10 * time.Second

// Config contains all runtime settings for the focus service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	JanitorInterval          time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	DatabaseURL string

	// MaxManualSessionHours caps manually added focus sessions.
	MaxManualSessionHours int

	AuthJWTSecret     string
	AuthAllowInsecure bool

	LogLevel  string
	LogFormat string
}

// ClientConfig contains settings for focus clients (focusctl).
type ClientConfig struct {
	WSURL             string
	APIURL            string
	Token             string
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	TickInterval      time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "focussync"),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		AuthJWTSecret:    trimmedEnv("AUTH_JWT_SECRET"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "text"),
		ShutdownTimeout:  15 * time.Second,
		SessionInactivityTimeout: 3 * DefaultHeartbeatInterval,
		JanitorInterval:          5 * time.Second,
		MaxManualSessionHours:    10,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("APP_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxManualSessionHours, err = intFromEnv("APP_MAX_MANUAL_SESSION_HOURS", cfg.MaxManualSessionHours)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", false)
	if err != nil {
		return Config{}, err
	}
	cfg.AuthAllowInsecure, err = boolFromEnv("AUTH_ALLOW_INSECURE", false)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 3*DefaultHeartbeatInterval {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least %s (three heartbeats)", 3*DefaultHeartbeatInterval)
	}
	if cfg.MaxManualSessionHours <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_MANUAL_SESSION_HOURS must be positive")
	}
	if cfg.JanitorInterval <= 0 {
		return Config{}, fmt.Errorf("APP_JANITOR_INTERVAL must be positive")
	}
	if cfg.AuthJWTSecret == "" && !cfg.AuthAllowInsecure {
		return Config{}, fmt.Errorf("AUTH_JWT_SECRET is required (or set AUTH_ALLOW_INSECURE=true for local development)")
	}

	return cfg, nil
}

// LoadClient reads focus client settings.
func LoadClient() (ClientConfig, error) {
	cfg := ClientConfig{
		WSURL:             envOrDefault("FOCUS_WS_URL", "ws://127.0.0.1:8080/v1/focus/ws"),
		APIURL:            envOrDefault("FOCUS_API_URL", "http://127.0.0.1:8080"),
		Token:             trimmedEnv("FOCUS_TOKEN"),
		LogLevel:          envOrDefault("LOG_LEVEL", "warn"),
		LogFormat:         envOrDefault("LOG_FORMAT", "text"),
		HeartbeatInterval: DefaultHeartbeatInterval,
		PollInterval:      500 * time.Millisecond,
		TickInterval:      time.Second,
	}
	var err error
	cfg.HeartbeatInterval, err = durationFromEnv("FOCUS_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	if err != nil {
		return ClientConfig{}, err
	}
	cfg.PollInterval, err = durationFromEnv("FOCUS_POLL_INTERVAL", cfg.PollInterval)
	if err != nil {
		return ClientConfig{}, err
	}
	cfg.TickInterval, err = durationFromEnv("FOCUS_TICK_INTERVAL", cfg.TickInterval)
	if err != nil {
		return ClientConfig{}, err
	}

	if cfg.HeartbeatInterval <= 0 || cfg.PollInterval <= 0 || cfg.TickInterval <= 0 {
		return ClientConfig{}, fmt.Errorf("focus intervals must be positive")
	}
	if cfg.PollInterval >= cfg.HeartbeatInterval {
		return ClientConfig{}, fmt.Errorf("FOCUS_POLL_INTERVAL must be shorter than FOCUS_HEARTBEAT_INTERVAL")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := trimmedEnv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: invalid boolean %q", key, v)
	}
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
