// Package router dispatches inbound protocol frames to registered handlers.
//
// Handlers are invoked synchronously in registration order. A frame whose
// type has no registered handler is dropped silently; unknown and opaque
// frames are still delivered to wildcard handlers so diagnostics can observe
// everything the gateway sends.
package router

import (
	"sync"

	"github.com/verdantlabs/chatlink/internal/protocol"
)

// Handler processes one inbound frame.
type Handler func(protocol.Frame)

// Router maps frame types to ordered handler lists.
type Router struct {
	mu       sync.Mutex
	handlers map[protocol.Type][]Handler
	wildcard []Handler
}

// New creates an empty router.
func New() *Router {
	return &Router{
		handlers: make(map[protocol.Type][]Handler),
	}
}

// On registers a handler for frames of type t. Registration is additive:
// later registrations run after earlier ones for the same type.
func (r *Router) On(t protocol.Type, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = append(r.handlers[t], h)
}

// OnAny registers a wildcard handler. It sees every dispatched frame,
// including opaque frames and unrecognized types, after the type-specific
// handlers have run.
func (r *Router) OnAny(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wildcard = append(r.wildcard, h)
}

// Dispatch delivers f to its type handlers and then to wildcard handlers.
// Dispatching a frame nobody listens for is not an error.
func (r *Router) Dispatch(f protocol.Frame) {
	r.mu.Lock()
	typed := make([]Handler, len(r.handlers[f.Type]))
	copy(typed, r.handlers[f.Type])
	wild := make([]Handler, len(r.wildcard))
	copy(wild, r.wildcard)
	r.mu.Unlock()

	for _, h := range typed {
		h(f)
	}
	for _, h := range wild {
		h(f)
	}
}
