// Package conn owns the client's single gateway connection.
//
// The Manager is an explicit finite-state machine over one socket at a time:
// disconnected, connecting, connected, closing, errored. Abnormal closes and
// failed dials retry with a fixed backoff up to a configured attempt budget,
// then park in errored until a manual Reset. A normal close (normal/going-
// away codes) never schedules a retry. While connected, a heartbeat goroutine
// sends ping frames on a fixed interval to keep intermediaries from idling
// the connection out; liveness itself is detected from transport close and
// error events, not from pong timing.
//
// Components:
//   - Manager: the connect/retry/backoff state machine
//   - Transport/Dialer: socket abstraction with a gorilla/websocket default
//   - Status: snapshot of the current connection for status surfaces
package conn
