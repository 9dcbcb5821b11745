package conn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/chatlink/internal/logging"
	"github.com/verdantlabs/chatlink/internal/protocol"
)

// fakeTransport is a scriptable in-memory transport.
type fakeTransport struct {
	in   chan []byte
	errc chan error

	mu     sync.Mutex
	sent   []protocol.Frame
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:   make(chan []byte, 16),
		errc: make(chan error, 2),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-t.in:
		return data, nil
	case err := <-t.errc:
		return nil, err
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport closed")
	}
	t.sent = append(t.sent, protocol.Parse(data))
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		select {
		case t.errc <- &websocket.CloseError{Code: websocket.CloseNormalClosure}:
		default:
		}
	}
	return nil
}

// failRead makes the next ReadMessage return err.
func (t *fakeTransport) failRead(err error) {
	t.errc <- err
}

func (t *fakeTransport) sentTypes() []protocol.Type {
	t.mu.Lock()
	defer t.mu.Unlock()
	types := make([]protocol.Type, len(t.sent))
	for i, f := range t.sent {
		types[i] = f.Type
	}
	return types
}

// fakeDialer pops scripted results; an exhausted script refuses dials.
type fakeDialer struct {
	mu     sync.Mutex
	script []func() (Transport, error)
	dials  int
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Transport, error) {
	d.mu.Lock()
	d.dials++
	var fn func() (Transport, error)
	if len(d.script) > 0 {
		fn = d.script[0]
		d.script = d.script[1:]
	}
	d.mu.Unlock()

	if fn == nil {
		return nil, errors.New("dial refused")
	}
	return fn()
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func accept(t *fakeTransport) func() (Transport, error) {
	return func() (Transport, error) { return t, nil }
}

func refuse() (Transport, error) {
	return nil, errors.New("connection refused")
}

func testConfig() Config {
	return Config{
		URL:            "ws://gateway.test/stream",
		ConnectTimeout: 100 * time.Millisecond,
		MaxAttempts:    3,
		Backoff:        5 * time.Millisecond,
	}
}

func newTestManager(cfg Config, d Dialer) *Manager {
	return NewManager(cfg, d, logging.NewNop(), nil)
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.State() == want
	}, time.Second, time.Millisecond, "expected state %s, got %s", want, m.State())
}

func TestConnectTransitionsToConnected(t *testing.T) {
	ft := newFakeTransport()
	d := &fakeDialer{script: []func() (Transport, error){accept(ft)}}
	m := newTestManager(testConfig(), d)

	var states []State
	var mu sync.Mutex
	m.OnLifecycle(func(e Event) {
		mu.Lock()
		states = append(states, e.State)
		mu.Unlock()
	})

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected}, states)
}

func TestConnectIsIdempotent(t *testing.T) {
	ft := newFakeTransport()
	d := &fakeDialer{script: []func() (Transport, error){accept(ft)}}
	m := newTestManager(testConfig(), d)

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)
	require.NoError(t, m.Connect())

	assert.Equal(t, 1, d.count())
}

func TestRetryBudgetThenErrored(t *testing.T) {
	// Every dial refused: exactly MaxAttempts dials, then errored, then no
	// further automatic attempts.
	d := &fakeDialer{}
	m := newTestManager(testConfig(), d)

	require.NoError(t, m.Connect())
	waitForState(t, m, StateErrored)

	assert.Equal(t, 3, d.count())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 3, d.count(), "no automatic attempts may follow errored")

	assert.ErrorIs(t, m.Connect(), ErrRetryExhausted)

	snap := m.Snapshot()
	assert.Equal(t, "errored", snap.State)
	assert.NotEmpty(t, snap.LastError)
}

func TestNormalCloseDoesNotRetry(t *testing.T) {
	ft := newFakeTransport()
	d := &fakeDialer{script: []func() (Transport, error){accept(ft)}}
	m := newTestManager(testConfig(), d)

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	ft.failRead(&websocket.CloseError{Code: websocket.CloseGoingAway})
	waitForState(t, m, StateDisconnected)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, d.count(), "normal close must never schedule a retry")
}

func TestAbnormalCloseReconnects(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	d := &fakeDialer{script: []func() (Transport, error){accept(first), accept(second)}}
	m := newTestManager(testConfig(), d)

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	first.failRead(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})

	require.Eventually(t, func() bool {
		return m.State() == StateConnected && d.count() == 2
	}, time.Second, time.Millisecond)

	// Counter resets on successful reconnect.
	assert.Equal(t, 0, m.Snapshot().Attempts)
}

func TestAbnormalClosesExhaustBudget(t *testing.T) {
	ft := newFakeTransport()
	d := &fakeDialer{script: []func() (Transport, error){accept(ft)}}
	m := newTestManager(testConfig(), d)

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	ft.failRead(errors.New("connection reset by peer"))
	waitForState(t, m, StateErrored)

	// The abnormal close consumes the first attempt; the two refused
	// redials exhaust the rest of the budget.
	assert.Equal(t, 3, d.count())
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	cfg := testConfig()
	cfg.Backoff = 50 * time.Millisecond
	d := &fakeDialer{}
	m := newTestManager(cfg, d)

	require.NoError(t, m.Connect())
	require.Eventually(t, func() bool { return d.count() == 1 }, time.Second, time.Millisecond)

	m.Disconnect()
	waitForState(t, m, StateDisconnected)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, d.count(), "disconnect must cancel the pending retry timer")
}

func TestDisconnectIsSafeFromAnyState(t *testing.T) {
	m := newTestManager(testConfig(), &fakeDialer{})

	assert.NotPanics(t, func() {
		m.Disconnect()
		m.Disconnect()
	})
	assert.Equal(t, StateDisconnected, m.State())
}

func TestResetLeavesErrored(t *testing.T) {
	ft := newFakeTransport()
	d := &fakeDialer{}
	m := newTestManager(testConfig(), d)

	require.NoError(t, m.Connect())
	waitForState(t, m, StateErrored)

	d.mu.Lock()
	d.script = []func() (Transport, error){accept(ft)}
	d.mu.Unlock()

	require.NoError(t, m.Reset())
	waitForState(t, m, StateConnected)

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.Attempts)
	assert.Empty(t, snap.LastError)
}

func TestSendRequiresConnection(t *testing.T) {
	m := newTestManager(testConfig(), &fakeDialer{})

	err := m.Send(protocol.ChatRequest("hi", "model", "sess_1"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendWritesFrame(t *testing.T) {
	ft := newFakeTransport()
	d := &fakeDialer{script: []func() (Transport, error){accept(ft)}}
	m := newTestManager(testConfig(), d)

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	require.NoError(t, m.Send(protocol.ChatRequest("안녕", "gpt-4o-mini", "sess_1")))

	types := ft.sentTypes()
	require.Len(t, types, 1)
	assert.Equal(t, protocol.TypeChatRequest, types[0])
}

func TestInboundFramesReachSubscribersInOrder(t *testing.T) {
	ft := newFakeTransport()
	d := &fakeDialer{script: []func() (Transport, error){accept(ft)}}
	m := newTestManager(testConfig(), d)

	var mu sync.Mutex
	var got []string
	m.OnFrame(func(f protocol.Frame) {
		mu.Lock()
		got = append(got, "a:"+string(f.Type))
		mu.Unlock()
	})
	m.OnFrame(func(f protocol.Frame) {
		mu.Lock()
		got = append(got, "b:"+string(f.Type))
		mu.Unlock()
	})

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	ft.in <- []byte(`{"type":"chatStream","data":{"message":"x"}}`)
	ft.in <- []byte(`not even json`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"a:chatStream", "b:chatStream",
		"a:opaque", "b:opaque",
	}, got)
}

func TestHeartbeatSendsPings(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	ft := newFakeTransport()
	d := &fakeDialer{script: []func() (Transport, error){accept(ft)}}
	m := newTestManager(cfg, d)

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	require.Eventually(t, func() bool {
		pings := 0
		for _, ty := range ft.sentTypes() {
			if ty == protocol.TypePing {
				pings++
			}
		}
		return pings >= 2
	}, time.Second, time.Millisecond)

	m.Disconnect()
}

func TestHeartbeatStopsOnDisconnect(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 5 * time.Millisecond
	ft := newFakeTransport()
	d := &fakeDialer{script: []func() (Transport, error){accept(ft)}}
	m := newTestManager(cfg, d)

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	m.Disconnect()
	waitForState(t, m, StateDisconnected)

	before := len(ft.sentTypes())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, len(ft.sentTypes()), "no pings after disconnect")
}
