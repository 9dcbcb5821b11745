// Package config provides 12-factor configuration management for the client.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Gateway: WebSocket gateway connection and reconnect settings
//   - History: session history API and local cache settings
//   - Debug: local status/metrics HTTP server
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Gateway: %s\n", cfg.Gateway.URL)
//
// Environment Variables:
//   - GATEWAY_URL, GATEWAY_MODEL, CONNECT_TIMEOUT_SECONDS
//   - RECONNECT_MAX_ATTEMPTS, RECONNECT_BACKOFF_SECONDS, HEARTBEAT_SECONDS
//   - HISTORY_API_URL, HISTORY_TIMEOUT_SECONDS, HISTORY_STORE_PATH
//   - DEBUG_ADDR, DEBUG_ENABLED
//   - LOG_LEVEL, LOG_DEV
package config
