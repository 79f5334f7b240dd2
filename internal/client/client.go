package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"livesync/internal/clock"
	"livesync/internal/coalescer"
	"livesync/internal/connection"
	"livesync/internal/models"
	"livesync/internal/notify"
	"livesync/internal/router"
)

/*
LEARNING: ONE SHARED SESSION PER SCOPE, MANY VIEWS

Several views can watch the same scope (a hub and an editor both attach to
project:42). They must share one socket, one presence set and one set of
open resources, so the client keeps a scopeState per scope and hands out
lightweight Bindings that reference it.

  Attach  -> interest++  (first binding opens the connection)
  Detach  -> interest--  (last binding closes it with a normal closure)

The scopeState wires the components together with router subscriptions
registered before any binding subscribes, so a binding's own handler
always sees presence/notifications already updated.
*/

// Loader fetches the current content of a resource (the CRUD layer)
type Loader interface {
	Load(ctx context.Context, ref models.ResourceRef) (models.EditableResource, error)
}

type Config struct {
	// UserID identifies the local user, for removal detection
	UserID         string
	PersistWindow  time.Duration
	PersistTimeout time.Duration
	Clock          clock.Clock

	// Optional observers. They run on connection and timer goroutines and
	// must not call back into the Client.
	OnStatus  func(models.StatusEvent)
	OnSave    func(models.SaveEvent)
	OnRemoved func(models.Scope)
}

// Client is the process-wide entry point for bindings
type Client struct {
	conns     *connection.Manager
	persister coalescer.Persister
	loader    Loader
	notices   *notify.State
	cfg       Config

	mu     sync.Mutex
	scopes map[models.Scope]*scopeState
}

// New builds a client. loader may be nil when resources are opened with
// content the caller already has.
func New(conns *connection.Manager, persister coalescer.Persister, loader Loader, cfg Config) *Client {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Client{
		conns:     conns,
		persister: persister,
		loader:    loader,
		notices:   notify.NewState(),
		cfg:       cfg,
		scopes:    make(map[models.Scope]*scopeState),
	}
}

// Attach registers interest in scope and returns a binding for it. The
// scope's connection is opened by the first binding; later bindings share
// it. ErrNoCredential is returned when no socket could be opened.
func (c *Client) Attach(ctx context.Context, scope models.Scope) (*Binding, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	st, ok := c.scopes[scope]
	if !ok {
		st = c.newScopeState(scope)
		c.scopes[scope] = st
	}
	b := newBinding(c, st)
	st.bindings[b.id] = b
	c.mu.Unlock()

	// Open is idempotent: a live connection is reused, a connection that
	// ended (server closed, credential lost) is started again.
	handle, err := c.conns.Open(ctx, scope, st.router.Dispatch, st.onStatus)
	if err != nil {
		b.Detach()
		if errors.Is(err, connection.ErrNoCredential) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to attach %s: %w", scope, err)
	}
	st.setHandle(handle)

	log.Printf("✓ Attached binding %s to %s", b.id, scope)
	return b, nil
}

// release drops a binding's interest and tears the scope down with it
// when it was the last one
func (c *Client) release(b *Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := b.st
	delete(st.bindings, b.id)
	if len(st.bindings) > 0 || c.scopes[st.scope] != st {
		return
	}
	delete(c.scopes, st.scope)

	// Closed while holding c.mu so a concurrent Attach for the same scope
	// cannot pick up the handle being shut down.
	st.edits.CloseAll()
	c.conns.Close(st.getHandle())
	st.presence.Reset()
	c.notices.Reset(st.scope)
	log.Printf("Released %s (no bindings left)", st.scope)
}

// RemovedSelf reports whether a collaborator update removed the local user
func (c *Client) RemovedSelf(msg *models.CollaboratorChanged) bool {
	if msg == nil || msg.RemovedUserID == nil || c.cfg.UserID == "" {
		return false
	}
	return string(*msg.RemovedUserID) == c.cfg.UserID
}

// ScopeInfo is a read-only snapshot of one attached scope
type ScopeInfo struct {
	Scope         models.Scope              `json:"scope"`
	State         models.ConnState          `json:"state"`
	Attempt       int                       `json:"attempt"`
	Bindings      int                       `json:"bindings"`
	Presence      []string                  `json:"presence"`
	PresenceKnown bool                      `json:"presence_known"`
	Flags         map[models.Channel]bool   `json:"flags"`
	Resources     []models.EditableResource `json:"resources"`
	Router        router.Stats              `json:"router"`
}

// Scopes snapshots every attached scope, ordered by scope
func (c *Client) Scopes() []ScopeInfo {
	c.mu.Lock()
	states := make([]*scopeState, 0, len(c.scopes))
	bindings := make(map[*scopeState]int, len(c.scopes))
	for _, st := range c.scopes {
		states = append(states, st)
		bindings[st] = len(st.bindings)
	}
	c.mu.Unlock()

	out := make([]ScopeInfo, 0, len(states))
	for _, st := range states {
		status := st.lastStatus()
		out = append(out, ScopeInfo{
			Scope:         st.scope,
			State:         c.conns.State(st.scope),
			Attempt:       status.Attempt,
			Bindings:      bindings[st],
			Presence:      st.presence.Current(),
			PresenceKnown: st.presence.Known(),
			Flags:         c.notices.Flags(st.scope),
			Resources:     st.edits.Resources(),
			Router:        st.router.Stats(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope.String() < out[j].Scope.String() })
	return out
}

// Shutdown detaches every binding; each scope closes with a normal closure
func (c *Client) Shutdown() {
	c.mu.Lock()
	var all []*Binding
	for _, st := range c.scopes {
		for _, b := range st.bindings {
			all = append(all, b)
		}
	}
	c.mu.Unlock()

	for _, b := range all {
		b.Detach()
	}
	log.Println("✓ Client shutdown complete")
}
