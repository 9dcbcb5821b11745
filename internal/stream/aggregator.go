// Package stream assembles incremental reply chunks into finalized messages.
package stream

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/verdantlabs/chatlink/internal/logging"
	"github.com/verdantlabs/chatlink/internal/monitoring"
)

// FinalizeFunc receives the finished assistant reply for a session.
type FinalizeFunc func(sessionID, text string)

// ErrorFunc receives a human-readable failure notice for a session.
type ErrorFunc func(sessionID, notice string)

// buffer accumulates one in-progress assistant reply.
type buffer struct {
	sessionID string
	text      strings.Builder
}

// Aggregator converts a sequence of stream chunks plus a terminating end
// frame into one finalized message. At most one reply is in flight at a
// time; the end frame's text is authoritative even when it differs from the
// concatenated chunks.
type Aggregator struct {
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu  sync.Mutex
	buf *buffer

	onFinal FinalizeFunc
	onError ErrorFunc
}

// New creates an aggregator. onFinal is invoked with the authoritative reply
// text; onError with a failure notice. Both are called outside the
// aggregator's internal lock, so they may call back into it.
func New(log *logging.Logger, metrics *monitoring.Metrics, onFinal FinalizeFunc, onError ErrorFunc) *Aggregator {
	return &Aggregator{
		log:     log,
		metrics: metrics,
		onFinal: onFinal,
		onError: onError,
	}
}

// Chunk appends one partial-content frame in arrival order. The first chunk
// for a session with no open buffer creates the buffer. Chunks are never
// reordered; ordering is the transport's responsibility.
func (a *Aggregator) Chunk(sessionID, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.buf != nil && a.buf.sessionID != sessionID {
		a.log.Warn("discarding stale streaming buffer",
			zap.String("stale_session", a.buf.sessionID),
			zap.String("session", sessionID),
		)
		a.metrics.IncStreamsDiscarded()
		a.buf = nil
	}

	if a.buf == nil {
		a.buf = &buffer{sessionID: sessionID}
	}
	a.buf.text.WriteString(text)
}

// End finalizes the in-flight reply. The end frame's text wins over the
// concatenated chunks; the gateway may resend the full text at end. Works
// even when no chunks arrived first.
func (a *Aggregator) End(sessionID, finalText string) {
	a.mu.Lock()
	a.buf = nil
	a.mu.Unlock()

	a.metrics.IncStreamsCompleted()
	a.onFinal(sessionID, finalText)
}

// Complete handles a non-streamed reply: one frame, one finalized message.
func (a *Aggregator) Complete(sessionID, text string) {
	a.metrics.IncStreamsCompleted()
	a.onFinal(sessionID, text)
}

// Fail discards any open buffer for the session and surfaces the notice as
// a synthetic assistant message. The in-flight request is considered done.
func (a *Aggregator) Fail(sessionID, notice string) {
	a.mu.Lock()
	if a.buf != nil {
		a.metrics.IncStreamsDiscarded()
		a.buf = nil
	}
	a.mu.Unlock()

	a.onError(sessionID, notice)
}

// Discard drops the open buffer without producing a message. Used when the
// connection dies mid-stream; no partial text is surfaced.
func (a *Aggregator) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.buf != nil {
		a.log.Debug("discarding streaming buffer", zap.String("session", a.buf.sessionID))
		a.metrics.IncStreamsDiscarded()
		a.buf = nil
	}
}

// Partial returns the text accumulated so far, for live display.
func (a *Aggregator) Partial() (sessionID, text string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.buf == nil {
		return "", "", false
	}
	return a.buf.sessionID, a.buf.text.String(), true
}
