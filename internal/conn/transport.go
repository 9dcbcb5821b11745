package conn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one live duplex socket delivering text messages.
type Transport interface {
	// ReadMessage blocks until the next inbound message or a read error.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one outbound message.
	WriteMessage(data []byte) error
	// Close tears the socket down, attempting a normal close handshake.
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// isNormalClose reports whether a read error signifies an intentional
// shutdown by the peer. Anything else is treated as abnormal and eligible
// for automatic reconnection.
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
	)
}

// WSDialer dials gateway connections over websocket.
type WSDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a websocket transport to the given URL.
func (d *WSDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}

	c, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial failed: %w", err)
	}

	return &wsTransport{conn: c}, nil
}

// wsTransport adapts a gorilla websocket connection. Concurrent writers are
// serialized; gorilla permits at most one writer at a time.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	t.writeMu.Unlock()
	return t.conn.Close()
}
