// Package events provides a minimal ordered observer primitive.
//
// Subscribers are invoked synchronously in registration order, which is the
// only ordering the client defines for lifecycle notifications.
package events

import "sync"

// Emitter dispatches values of type T to an ordered list of subscribers.
// The zero value is ready to use.
type Emitter[T any] struct {
	mu   sync.Mutex
	subs []func(T)
}

// Subscribe registers fn. Registration is additive; the same function may be
// registered more than once and will be invoked once per registration.
func (e *Emitter[T]) Subscribe(fn func(T)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// Emit delivers v to every subscriber in registration order. Subscribers
// registered during Emit are not invoked for the current value.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	subs := make([]func(T), len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Len returns the number of registered subscribers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
