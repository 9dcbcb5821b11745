// Package server provides the local debug HTTP surface: connection status,
// history listing, and Prometheus metrics. It binds to loopback and is off
// by default.
package server
