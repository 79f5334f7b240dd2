package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	"livesync/internal/middleware"
	"livesync/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: MESSAGE ROUTER

One socket carries many kinds of frames. The router decodes the "type"
discriminant and fans the typed message out to every handler registered
for that type, in registration order.

Rules:
1. Unknown types are dropped quietly - the server may be newer than we are
2. Malformed frames are dropped with a log line, never returned as errors
3. A panicking handler is recovered so it cannot kill the read loop
4. Handlers run outside the lock, so they may subscribe/unsubscribe freely
*/

// Handler receives one decoded inbound message
type Handler func(msg models.Inbound)

// Subscription identifies one registered handler
type Subscription struct {
	ID   string
	Type models.MessageType
}

type subscriber struct {
	id      string
	handler Handler
}

// Stats counts frames by outcome
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	Unknown    uint64 `json:"unknown"`
	Malformed  uint64 `json:"malformed"`
	Panics     uint64 `json:"panics"`
}

// Router dispatches frames for a single scope
type Router struct {
	scope models.Scope

	mu       sync.Mutex
	handlers map[models.MessageType][]subscriber
	stats    Stats
}

func New(scope models.Scope) *Router {
	return &Router{
		scope:    scope,
		handlers: make(map[models.MessageType][]subscriber),
	}
}

// Subscribe registers handler for messages of type t
func (r *Router) Subscribe(t models.MessageType, handler Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := Subscription{ID: uuid.NewString(), Type: t}
	r.handlers[t] = append(r.handlers[t], subscriber{id: sub.ID, handler: handler})
	return sub
}

// Unsubscribe removes a handler. Unknown subscriptions are ignored.
func (r *Router) Unsubscribe(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.handlers[sub.Type]
	for i, s := range subs {
		if s.id == sub.ID {
			// Copy instead of re-slicing in place: a Dispatch in flight
			// may still be iterating the old slice.
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(r.handlers, sub.Type)
			} else {
				r.handlers[sub.Type] = next
			}
			return
		}
	}
}

// HandlerCount returns how many handlers are registered for t
func (r *Router) HandlerCount(t models.MessageType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[t])
}

func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Dispatch decodes frame and invokes its handlers. It never fails.
func (r *Router) Dispatch(frame []byte) {
	msg, err := models.DecodeInbound(frame)
	if err != nil {
		r.mu.Lock()
		if errors.Is(err, models.ErrUnknownType) {
			r.stats.Unknown++
		} else {
			r.stats.Malformed++
		}
		r.mu.Unlock()

		if !errors.Is(err, models.ErrUnknownType) {
			log.Printf("⚠️  [%s] Dropping frame: %v", r.scope, err)
		}
		return
	}

	r.mu.Lock()
	subs := r.handlers[msg.Kind()]
	r.stats.Dispatched++
	r.mu.Unlock()

	ctx, span := middleware.StartSpan(context.Background(), "Router.Dispatch",
		attribute.String("scope", r.scope.String()),
		attribute.String("message.type", string(msg.Kind())),
		attribute.Int("message.size", len(frame)),
		attribute.Int("handlers", len(subs)),
	)
	defer span.End()

	for _, s := range subs {
		r.invoke(ctx, s, msg)
	}
}

func (r *Router) invoke(ctx context.Context, s subscriber, msg models.Inbound) {
	defer func() {
		if p := recover(); p != nil {
			r.mu.Lock()
			r.stats.Panics++
			r.mu.Unlock()
			log.Printf("[%s] PANIC in %s handler %s: %v\n%s", r.scope, msg.Kind(), s.id, p, debug.Stack())
			middleware.AddSpanEvent(ctx, "handler.panic",
				attribute.String("error", fmt.Sprint(p)))
		}
	}()
	s.handler(msg)
}
