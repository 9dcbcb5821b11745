package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all client configuration.
type Config struct {
	Gateway GatewayConfig
	History HistoryConfig
	Debug   DebugConfig
	Logging LogConfig
}

// GatewayConfig holds WebSocket gateway connection configuration.
type GatewayConfig struct {
	URL               string `envconfig:"GATEWAY_URL" default:"ws://localhost:8000/stream"`
	Model             string `envconfig:"GATEWAY_MODEL" default:"gpt-4o-mini"`
	ConnectTimeoutSec int    `envconfig:"CONNECT_TIMEOUT_SECONDS" default:"10"`
	MaxAttempts       int    `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	BackoffSec        int    `envconfig:"RECONNECT_BACKOFF_SECONDS" default:"3"`
	HeartbeatSec      int    `envconfig:"HEARTBEAT_SECONDS" default:"30"`
}

// ConnectTimeout returns the handshake timeout as a duration.
func (g GatewayConfig) ConnectTimeout() time.Duration {
	return time.Duration(g.ConnectTimeoutSec) * time.Second
}

// Backoff returns the fixed reconnect delay as a duration.
func (g GatewayConfig) Backoff() time.Duration {
	return time.Duration(g.BackoffSec) * time.Second
}

// Heartbeat returns the ping interval as a duration.
func (g GatewayConfig) Heartbeat() time.Duration {
	return time.Duration(g.HeartbeatSec) * time.Second
}

// HistoryConfig holds session history API and local cache configuration.
type HistoryConfig struct {
	APIURL     string `envconfig:"HISTORY_API_URL" default:"http://localhost:8000/api"`
	TimeoutSec int    `envconfig:"HISTORY_TIMEOUT_SECONDS" default:"15"`
	StorePath  string `envconfig:"HISTORY_STORE_PATH" default:""`
}

// Timeout returns the fetch timeout as a duration.
func (h HistoryConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSec) * time.Second
}

// DebugConfig holds the local status/metrics server configuration.
type DebugConfig struct {
	Addr    string `envconfig:"DEBUG_ADDR" default:"127.0.0.1:9181"`
	Enabled bool   `envconfig:"DEBUG_ENABLED" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL:               "ws://localhost:8000/stream",
			Model:             "gpt-4o-mini",
			ConnectTimeoutSec: 10,
			MaxAttempts:       5,
			BackoffSec:        3,
			HeartbeatSec:      30,
		},
		History: HistoryConfig{
			APIURL:     "http://localhost:8000/api",
			TimeoutSec: 15,
		},
		Debug: DebugConfig{
			Addr:    "127.0.0.1:9181",
			Enabled: false,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
