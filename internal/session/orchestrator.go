package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/verdantlabs/chatlink/internal/conn"
	"github.com/verdantlabs/chatlink/internal/events"
	"github.com/verdantlabs/chatlink/internal/history"
	"github.com/verdantlabs/chatlink/internal/logging"
	"github.com/verdantlabs/chatlink/internal/monitoring"
	"github.com/verdantlabs/chatlink/internal/protocol"
	"github.com/verdantlabs/chatlink/internal/router"
	"github.com/verdantlabs/chatlink/internal/shared/id"
	"github.com/verdantlabs/chatlink/internal/stream"
)

const (
	titleMaxRunes   = 40
	previewMaxRunes = 60
)

// Status is a point-in-time snapshot of the orchestrator for display and
// debug surfaces.
type Status struct {
	Conn      conn.Status `json:"conn"`
	SessionID string      `json:"session_id"`
	Messages  int         `json:"messages"`
	Loading   bool        `json:"loading"`
}

// Orchestrator is the single entry point the UI talks to. It owns the active
// conversation, routes inbound frames to the streaming aggregator, keeps the
// history service in sync, and hides connection management behind send
// semantics: a send with no live connection is queued and flushed once the
// connection opens.
type Orchestrator struct {
	log     *logging.Logger
	metrics *monitoring.Metrics

	conn    *conn.Manager
	routes  *router.Router
	agg     *stream.Aggregator
	history *history.Service
	model   string

	replies events.Emitter[Message]

	mu      sync.Mutex
	sess    Session
	loading bool
	pending []protocol.Frame
}

// New wires an orchestrator around an existing connection manager and
// history service, starting with a fresh empty conversation.
func New(cm *conn.Manager, hist *history.Service, model string, log *logging.Logger, metrics *monitoring.Metrics) *Orchestrator {
	o := &Orchestrator{
		log:     log,
		metrics: metrics,
		conn:    cm,
		routes:  router.New(),
		history: hist,
		model:   model,
		sess:    Session{ID: id.NewSessionID().String()},
	}
	o.agg = stream.New(log, metrics, o.finalizeReply, o.failReply)

	o.routes.On(protocol.TypeChatStream, func(f protocol.Frame) {
		o.agg.Chunk(o.streamSession(f), f.Data.Message)
	})
	o.routes.On(protocol.TypeChatStreamEnd, func(f protocol.Frame) {
		o.agg.End(o.streamSession(f), f.Data.Message)
	})
	o.routes.On(protocol.TypeChatResponse, func(f protocol.Frame) {
		o.agg.Complete(o.streamSession(f), f.Data.Message)
	})
	o.routes.On(protocol.TypeError, func(f protocol.Frame) {
		o.agg.Fail(o.streamSession(f), f.Data.Message)
	})
	o.routes.On(protocol.TypeConnectAck, func(f protocol.Frame) {
		o.log.Debug("gateway acknowledged connection", zap.String("session", f.Data.SessionID))
	})
	o.routes.OnAny(func(f protocol.Frame) {
		if !f.Type.Known() {
			o.log.Debug("unhandled frame", zap.String("type", string(f.Type)))
		}
	})

	cm.OnFrame(o.routes.Dispatch)
	cm.OnLifecycle(o.onLifecycle)
	return o
}

// StartNewConversation resets the active context: a fresh identifier, an
// empty message log, and any in-flight reply abandoned. History is untouched
// until the new conversation produces its first reply.
func (o *Orchestrator) StartNewConversation() {
	sid := id.NewSessionID().String()

	o.mu.Lock()
	o.sess = Session{ID: sid}
	o.loading = false
	o.pending = nil
	o.mu.Unlock()

	o.agg.Discard()
	o.log.Info("started new conversation", zap.String("session", sid))
}

// SendUserMessage appends the text to the log and transmits a chat request.
// Blank input and sends while a reply is already in flight are ignored. With
// no live connection the request is queued, a connect is initiated, and the
// queue is flushed once the connection opens; the message is never silently
// dropped.
func (o *Orchestrator) SendUserMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	o.mu.Lock()
	if o.loading {
		o.mu.Unlock()
		return nil
	}
	o.sess.Messages = append(o.sess.Messages, Message{Role: RoleUser, Content: text})
	o.loading = true
	frame := protocol.ChatRequest(text, o.model, o.sess.ID)
	o.mu.Unlock()

	err := o.conn.Send(frame)
	if err == nil {
		return nil
	}
	if !errors.Is(err, conn.ErrNotConnected) {
		o.clearLoading()
		return err
	}

	o.mu.Lock()
	o.pending = append(o.pending, frame)
	o.mu.Unlock()

	if err := o.conn.Connect(); err != nil {
		// Parked in errored; the queued frame survives until Retry.
		o.log.Warn("send deferred, connection unavailable", zap.Error(err))
	}
	return nil
}

// SelectConversation switches the active context to a history entry and
// loads its messages from the gateway, at most once per selection. Selecting
// the already-active conversation is a no-op. When the fetch fails, the
// summary's title and preview stand in as a two-message approximation so the
// switch still succeeds.
func (o *Orchestrator) SelectConversation(ctx context.Context, sessionID string) {
	o.mu.Lock()
	if o.sess.ID == sessionID {
		o.mu.Unlock()
		return
	}
	o.sess = Session{ID: sessionID}
	o.loading = false
	o.pending = nil
	o.mu.Unlock()

	o.agg.Discard()

	msgs := o.loadMessages(ctx, sessionID)

	o.mu.Lock()
	if o.sess.ID == sessionID {
		o.sess.Messages = msgs
	}
	o.mu.Unlock()
}

// DeleteConversation removes a history entry. Deleting the active
// conversation also resets the context, as if a new conversation had been
// started.
func (o *Orchestrator) DeleteConversation(sessionID string) {
	o.history.Delete(sessionID)

	o.mu.Lock()
	active := o.sess.ID == sessionID
	o.mu.Unlock()

	if active {
		o.StartNewConversation()
	}
}

// OnReply subscribes to finalized assistant messages, including synthetic
// error notices, in registration order.
func (o *Orchestrator) OnReply(fn func(Message)) {
	o.replies.Subscribe(fn)
}

// Retry is the manual recovery path out of the errored state. It clears the
// retry budget and reconnects; queued sends flush when the connection opens.
func (o *Orchestrator) Retry() error {
	return o.conn.Reset()
}

// Connect starts the connection without sending anything.
func (o *Orchestrator) Connect() error {
	return o.conn.Connect()
}

// Close tears down the connection. The orchestrator stays usable; a later
// send reconnects.
func (o *Orchestrator) Close() {
	o.conn.Disconnect()
}

// Messages returns a copy of the active conversation's log.
func (o *Orchestrator) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Message, len(o.sess.Messages))
	copy(out, o.sess.Messages)
	return out
}

// SessionID returns the active conversation identifier.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess.ID
}

// Loading reports whether a reply is in flight.
func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

// Partial exposes the in-progress reply text for live display.
func (o *Orchestrator) Partial() (string, bool) {
	_, text, ok := o.agg.Partial()
	return text, ok
}

// History returns the history service for listing and refreshing.
func (o *Orchestrator) History() *history.Service {
	return o.history
}

// Snapshot returns the orchestrator's current status.
func (o *Orchestrator) Snapshot() Status {
	o.mu.Lock()
	sid := o.sess.ID
	count := len(o.sess.Messages)
	loading := o.loading
	o.mu.Unlock()

	return Status{
		Conn:      o.conn.Snapshot(),
		SessionID: sid,
		Messages:  count,
		Loading:   loading,
	}
}

// streamSession resolves which conversation a reply frame belongs to. Older
// gateways omit the session on stream frames; those attach to the active one.
func (o *Orchestrator) streamSession(f protocol.Frame) string {
	if f.Data.SessionID != "" {
		return f.Data.SessionID
	}
	return o.SessionID()
}

// onLifecycle reacts to connection transitions: an open connection flushes
// queued sends, a dead one discards any half-built reply so no partial text
// ever surfaces as a message.
func (o *Orchestrator) onLifecycle(ev conn.Event) {
	switch ev.State {
	case conn.StateConnected:
		o.flushPending()
	case conn.StateDisconnected, conn.StateErrored:
		o.agg.Discard()
		o.clearLoading()
	}
}

// flushPending sends queued frames in order. A frame that still fails to
// send goes back on the queue for the next open.
func (o *Orchestrator) flushPending() {
	o.mu.Lock()
	queued := o.pending
	o.pending = nil
	o.mu.Unlock()

	for i, f := range queued {
		if err := o.conn.Send(f); err != nil {
			o.log.Warn("flush interrupted, re-queueing", zap.Error(err))
			o.mu.Lock()
			o.pending = append(queued[i:], o.pending...)
			o.mu.Unlock()
			return
		}
	}
}

// finalizeReply lands the authoritative reply text as an assistant message
// and, exactly once per conversation, synthesizes a history entry from the
// first user turn and the reply.
func (o *Orchestrator) finalizeReply(sessionID, text string) {
	o.mu.Lock()
	if sessionID != "" && sessionID != o.sess.ID {
		o.mu.Unlock()
		o.log.Debug("dropping reply for inactive session", zap.String("session", sessionID))
		return
	}
	reply := Message{Role: RoleAssistant, Content: text}
	o.sess.Messages = append(o.sess.Messages, reply)
	o.loading = false
	sid := o.sess.ID
	title := o.sess.firstUserMessage()
	o.mu.Unlock()

	o.replies.Emit(reply)

	if title == "" || o.history.Contains(sid) {
		return
	}
	o.history.Add(history.Summary{
		ID:           sid,
		Title:        truncate(title, titleMaxRunes),
		Preview:      truncate(text, previewMaxRunes),
		LastActivity: time.Now(),
		Model:        o.model,
	})
}

// failReply surfaces a gateway error as a synthetic assistant message so the
// failure is visible in the conversation, and closes out the in-flight state.
func (o *Orchestrator) failReply(sessionID, notice string) {
	if notice == "" {
		notice = "the gateway reported an error"
	}

	o.mu.Lock()
	if sessionID != "" && sessionID != o.sess.ID {
		o.mu.Unlock()
		return
	}
	reply := Message{Role: RoleAssistant, Content: "Error: " + notice}
	o.sess.Messages = append(o.sess.Messages, reply)
	o.loading = false
	o.mu.Unlock()

	o.replies.Emit(reply)
	o.log.Warn("gateway error", zap.String("notice", notice))
}

// loadMessages fetches a conversation's recorded exchanges, degrading to the
// summary's title and preview when the gateway is unreachable.
func (o *Orchestrator) loadMessages(ctx context.Context, sessionID string) []Message {
	exchanges, err := o.history.Messages(ctx, sessionID)
	if err == nil && len(exchanges) > 0 {
		msgs := make([]Message, 0, len(exchanges)*2)
		for _, ex := range exchanges {
			msgs = append(msgs,
				Message{Role: RoleUser, Content: ex.UserMessage},
				Message{Role: RoleAssistant, Content: ex.AIResponse},
			)
		}
		return msgs
	}
	if err != nil {
		o.log.Warn("message fetch failed, using summary fallback",
			zap.String("session", sessionID),
			zap.Error(err),
		)
	}
	sum, ok := o.history.Get(sessionID)
	if !ok {
		return nil
	}
	return []Message{
		{Role: RoleUser, Content: sum.Title},
		{Role: RoleAssistant, Content: sum.Preview},
	}
}

// clearLoading releases the in-flight flag without touching the log.
func (o *Orchestrator) clearLoading() {
	o.mu.Lock()
	o.loading = false
	o.mu.Unlock()
}

// truncate cuts s to at most max runes, appending an ellipsis when trimmed.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
