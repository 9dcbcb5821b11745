package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/verdantlabs/chatlink/internal/events"
	"github.com/verdantlabs/chatlink/internal/logging"
	"github.com/verdantlabs/chatlink/internal/monitoring"
	"github.com/verdantlabs/chatlink/internal/protocol"
)

var (
	// ErrNotConnected is returned by Send when no live transport exists.
	ErrNotConnected = errors.New("not connected")
	// ErrRetryExhausted is returned by Connect while the manager is parked
	// in the errored state; only Reset leaves it.
	ErrRetryExhausted = errors.New("reconnect attempts exhausted")
)

// Config defines connection behavior.
type Config struct {
	// URL is the gateway websocket address.
	URL string
	// ConnectTimeout bounds a single dial attempt.
	ConnectTimeout time.Duration
	// MaxAttempts is the retry budget before parking in errored.
	MaxAttempts int
	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
	// HeartbeatInterval is the ping cadence while connected. Zero disables
	// the heartbeat.
	HeartbeatInterval time.Duration
}

// Event is one lifecycle notification.
type Event struct {
	State State
	Err   error
}

// Status is a point-in-time snapshot of the connection.
type Status struct {
	URL       string    `json:"url"`
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Manager owns at most one live transport and drives the reconnect state
// machine. All transitions happen under one mutex; superseded transports are
// invalidated by a generation counter so stale read loops and timers cannot
// corrupt the current connection.
type Manager struct {
	cfg     Config
	log     *logging.Logger
	metrics *monitoring.Metrics
	dialer  Dialer

	frames    events.Emitter[protocol.Frame]
	lifecycle events.Emitter[Event]

	mu         sync.Mutex
	state      State
	attempts   int
	lastErr    error
	transport  Transport
	retryTimer *time.Timer
	hbStop     chan struct{}
	gen        uint64
	startedAt  time.Time
}

// NewManager creates a connection manager. It does not connect.
func NewManager(cfg Config, dialer Dialer, log *logging.Logger, metrics *monitoring.Metrics) *Manager {
	if dialer == nil {
		dialer = &WSDialer{HandshakeTimeout: cfg.ConnectTimeout}
	}
	return &Manager{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		dialer:  dialer,
		state:   StateDisconnected,
	}
}

// OnFrame subscribes to successfully received inbound frames, in
// registration order.
func (m *Manager) OnFrame(fn func(protocol.Frame)) {
	m.frames.Subscribe(fn)
}

// OnLifecycle subscribes to state-change notifications, in registration
// order.
func (m *Manager) OnLifecycle(fn func(Event)) {
	m.lifecycle.Subscribe(fn)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current connection status.
func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		URL:       m.cfg.URL,
		State:     m.state.String(),
		Attempts:  m.attempts,
		StartedAt: m.startedAt,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Connect starts the connection attempt loop. It is idempotent while
// already connecting or connected. While errored it refuses; use Reset.
func (m *Manager) Connect() error {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateConnected:
		m.mu.Unlock()
		return nil
	case StateErrored:
		m.mu.Unlock()
		return ErrRetryExhausted
	}

	m.state = StateConnecting
	m.startedAt = time.Now()
	gen := m.gen
	m.mu.Unlock()

	m.emit(StateConnecting, nil)
	go m.attempt(gen)
	return nil
}

// Reset clears the attempt counter and error flag, tears down anything
// live, and reconnects. This is the manual retry path, distinct from the
// automatic one.
func (m *Manager) Reset() error {
	m.teardown(false)

	m.mu.Lock()
	m.attempts = 0
	m.lastErr = nil
	m.mu.Unlock()

	return m.Connect()
}

// Disconnect tears down the connection, cancels any pending retry, and
// stops the heartbeat. Safe to call from any state; always succeeds.
func (m *Manager) Disconnect() {
	m.teardown(true)
}

// Send transmits a frame. It fails with ErrNotConnected in any state other
// than connected; callers are expected to check or queue.
func (m *Manager) Send(f protocol.Frame) error {
	m.mu.Lock()
	t := m.transport
	connected := m.state == StateConnected && t != nil
	m.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	if err := t.WriteMessage(data); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	m.metrics.RecordFrame("out", string(f.Type))
	return nil
}

// attempt dials once for the given generation and either promotes to
// connected or schedules the next retry.
func (m *Manager) attempt(gen uint64) {
	m.metrics.IncConnectAttempts()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	t, err := m.dialer.Dial(ctx, m.cfg.URL)
	cancel()

	m.mu.Lock()
	if m.gen != gen || m.state != StateConnecting {
		// Superseded by Disconnect or Reset while dialing.
		m.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
		return
	}

	if err != nil {
		notify := m.failLocked(gen, err)
		m.mu.Unlock()
		notify()
		return
	}

	m.transport = t
	m.state = StateConnected
	m.attempts = 0
	m.lastErr = nil
	hbStop := make(chan struct{})
	m.hbStop = hbStop
	m.mu.Unlock()

	m.log.Info("connected to gateway", zap.String("url", m.cfg.URL))
	m.emit(StateConnected, nil)

	go m.readLoop(t, gen)
	go m.heartbeat(hbStop)
}

// failLocked advances the retry state machine after a failed attempt or an
// abnormal close. Caller holds mu; the returned func performs notifications
// and must be called after unlocking.
func (m *Manager) failLocked(gen uint64, cause error) func() {
	m.lastErr = cause
	m.attempts++

	if m.attempts >= m.cfg.MaxAttempts {
		m.state = StateErrored
		m.log.Error("reconnect attempts exhausted",
			zap.Int("attempts", m.attempts),
			zap.Error(cause),
		)
		return func() {
			m.metrics.IncConnectionsFailed()
			m.emit(StateErrored, cause)
		}
	}

	m.state = StateConnecting
	m.startedAt = time.Now()
	attempt := m.attempts
	m.retryTimer = time.AfterFunc(m.cfg.Backoff, func() {
		m.retry(gen)
	})

	return func() {
		m.metrics.IncReconnects()
		m.log.Warn("connection attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.cfg.MaxAttempts),
			zap.Duration("backoff", m.cfg.Backoff),
			zap.Error(cause),
		)
		m.emit(StateConnecting, cause)
	}
}

// retry fires from the backoff timer.
func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.mu.Unlock()

	m.attempt(gen)
}

// readLoop pumps inbound messages for one transport generation. Every
// successfully read payload is parsed (degrading to opaque, never failing)
// and delivered to frame subscribers in order.
func (m *Manager) readLoop(t Transport, gen uint64) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			m.handleReadError(gen, err)
			return
		}

		f := protocol.Parse(data)
		m.metrics.RecordFrame("in", string(f.Type))
		m.frames.Emit(f)
	}
}

// handleReadError classifies a dead transport: a normal close parks in
// disconnected with no retry, an abnormal one re-enters the backoff loop.
func (m *Manager) handleReadError(gen uint64, err error) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateConnected {
		// Deliberate teardown already handled this transport.
		m.mu.Unlock()
		return
	}

	m.gen++
	newGen := m.gen
	if m.transport != nil {
		_ = m.transport.Close()
		m.transport = nil
	}
	m.stopHeartbeatLocked()

	if isNormalClose(err) {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.log.Info("gateway closed connection")
		m.emit(StateDisconnected, nil)
		return
	}

	notify := m.failLocked(newGen, err)
	m.mu.Unlock()
	notify()
}

// teardown moves to disconnected from any state, invalidating timers, the
// heartbeat, and the live transport. emitClosing controls whether a closing
// transition is surfaced before the final disconnected event.
func (m *Manager) teardown(emitClosing bool) {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}

	m.gen++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.stopHeartbeatLocked()
	t := m.transport
	m.transport = nil
	if emitClosing && t != nil {
		m.state = StateClosing
	}
	m.mu.Unlock()

	if emitClosing && t != nil {
		m.emit(StateClosing, nil)
	}
	if t != nil {
		_ = t.Close()
	}

	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()
	m.emit(StateDisconnected, nil)
}

// heartbeat sends ping frames on a fixed interval until stopped. Pong
// receipt is observed by frame subscribers but resets nothing here; the
// heartbeat only keeps intermediaries from idling out the connection.
func (m *Manager) heartbeat(stop chan struct{}) {
	if m.cfg.HeartbeatInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.Send(protocol.Ping()); err != nil {
				m.log.Debug("heartbeat send failed", zap.Error(err))
				return
			}
		}
	}
}

// stopHeartbeatLocked stops the heartbeat goroutine. Caller holds mu.
func (m *Manager) stopHeartbeatLocked() {
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
}

// emit publishes a lifecycle event and mirrors the state into metrics.
func (m *Manager) emit(s State, err error) {
	m.metrics.SetConnectionState(int(s))
	m.lifecycle.Emit(Event{State: s, Err: err})
}
