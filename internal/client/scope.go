package client

import (
	"log"
	"sync"

	"livesync/internal/coalescer"
	"livesync/internal/connection"
	"livesync/internal/models"
	"livesync/internal/presence"
	"livesync/internal/router"
)

// scopeState is the shared per-scope session behind every binding
type scopeState struct {
	client   *Client
	scope    models.Scope
	router   *router.Router
	presence *presence.Tracker
	edits    *coalescer.Coalescer

	// guarded by client.mu
	bindings map[string]*Binding

	mu      sync.Mutex
	handle  *connection.Handle
	status  models.StatusEvent
	openers map[string]int
}

func (c *Client) newScopeState(scope models.Scope) *scopeState {
	st := &scopeState{
		client:   c,
		scope:    scope,
		router:   router.New(scope),
		presence: presence.NewTracker(),
		bindings: make(map[string]*Binding),
		status:   models.StatusEvent{Scope: scope, State: models.StateClosed},
		openers:  make(map[string]int),
	}
	st.edits = coalescer.New(scope, c.persister, st, coalescer.Config{
		Window:         c.cfg.PersistWindow,
		PersistTimeout: c.cfg.PersistTimeout,
		Clock:          c.cfg.Clock,
		OnSave:         c.cfg.OnSave,
	})
	st.wire()
	return st
}

// wire registers the built-in subscriptions that keep the shared
// components current
func (st *scopeState) wire() {
	notices := st.client.notices

	st.router.Subscribe(models.TypeActiveUsers, func(msg models.Inbound) {
		st.presence.OnSnapshot(msg.(*models.PresenceSnapshot).UserIDs())
	})
	st.router.Subscribe(models.TypeChatMessage, func(models.Inbound) {
		notices.OnActivity(st.scope, models.ChannelChat)
	})
	st.router.Subscribe(models.TypeAlertUpdate, func(msg models.Inbound) {
		notices.OnAlertCount(st.scope, msg.(*models.AlertInvalidate).UnresolvedCount)
	})
	st.router.Subscribe(models.TypeNewJoinRequest, func(models.Inbound) {
		notices.OnActivity(st.scope, models.ChannelJoinRequests)
	})
	st.router.Subscribe(models.TypeCodeUpdate, func(msg models.Inbound) {
		m := msg.(*models.CodeUpdate)
		st.edits.ApplyRemote(m.FileID.String(), m.Content, nil)
	})
	st.router.Subscribe(models.TypeDocContentUpdate, func(msg models.Inbound) {
		m := msg.(*models.DocContentUpdate)
		meta := &models.SaveResult{Title: m.Title, UpdaterName: m.UpdaterName}
		if ts, ok := m.Timestamp(); ok {
			meta.UpdatedAt = ts
		}
		st.edits.ApplyRemote(m.DocumentID.String(), m.Content, meta)
	})
	st.router.Subscribe(models.TypeCollaboratorUpdate, func(msg models.Inbound) {
		if !st.client.RemovedSelf(msg.(*models.CollaboratorChanged)) {
			return
		}
		log.Printf("⚠️  [%s] Local user was removed from the project", st.scope)
		if st.client.cfg.OnRemoved != nil {
			st.client.cfg.OnRemoved(st.scope)
		}
	})
}

// onStatus receives connection transitions. Presence is only meaningful
// for the socket that produced it, so it is cleared whenever the scope
// enters or leaves Open.
func (st *scopeState) onStatus(ev models.StatusEvent) {
	st.mu.Lock()
	prev := st.status.State
	st.status = ev
	st.mu.Unlock()

	if prev != ev.State && (prev == models.StateOpen || ev.State == models.StateOpen) {
		st.presence.Reset()
	}
	if st.client.cfg.OnStatus != nil {
		st.client.cfg.OnStatus(ev)
	}
}

func (st *scopeState) lastStatus() models.StatusEvent {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status
}

func (st *scopeState) setHandle(h *connection.Handle) {
	st.mu.Lock()
	st.handle = h
	st.mu.Unlock()
}

func (st *scopeState) getHandle() *connection.Handle {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.handle
}

// Broadcast implements coalescer.Broadcaster. Only files have a live edit
// frame; documents propagate through the server after a durable write.
func (st *scopeState) Broadcast(ref models.ResourceRef, content string) bool {
	if ref.Kind != models.ResourceFile {
		return false
	}
	return st.client.conns.Send(st.getHandle(), models.CodeEdit{FileID: ref.ID, Content: content})
}

// retain counts one more opener of a resource
func (st *scopeState) retain(id string) {
	st.mu.Lock()
	st.openers[id]++
	st.mu.Unlock()
}

// releaseResource drops one opener and closes the resource after the last
func (st *scopeState) releaseResource(id string) {
	st.mu.Lock()
	st.openers[id]--
	last := st.openers[id] <= 0
	if last {
		delete(st.openers, id)
	}
	st.mu.Unlock()

	if last {
		st.edits.Close(id)
	}
}
