package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"livesync/internal/coalescer"
	"livesync/internal/models"
	"livesync/internal/router"

	"github.com/segmentio/ksuid"
)

var ErrDetached = errors.New("binding is detached")

// Binding is one view's handle on a scope
type Binding struct {
	id     string
	client *Client
	st     *scopeState

	mu        sync.Mutex
	subs      []router.Subscription
	resources map[string]bool
	detached  bool
}

func newBinding(c *Client, st *scopeState) *Binding {
	return &Binding{
		id:        ksuid.New().String(),
		client:    c,
		st:        st,
		resources: make(map[string]bool),
	}
}

func (b *Binding) ID() string          { return b.id }
func (b *Binding) Scope() models.Scope { return b.st.scope }

// Subscribe registers a handler for one inbound kind. It is removed
// automatically on Detach.
func (b *Binding) Subscribe(t models.MessageType, handler router.Handler) (router.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.detached {
		return router.Subscription{}, ErrDetached
	}
	sub := b.st.router.Subscribe(t, handler)
	b.subs = append(b.subs, sub)
	return sub, nil
}

func (b *Binding) Unsubscribe(sub router.Subscription) {
	b.mu.Lock()
	for i, s := range b.subs {
		if s.ID == sub.ID {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	b.st.router.Unsubscribe(sub)
}

// OpenResource starts editing a resource whose content the caller loaded.
// Document refs default to the binding's project.
func (b *Binding) OpenResource(res models.EditableResource) (models.EditableResource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.detached {
		return models.EditableResource{}, ErrDetached
	}
	if res.Ref.ID == "" {
		return models.EditableResource{}, fmt.Errorf("resource id is required")
	}
	if res.Ref.Kind == "" {
		res.Ref.Kind = models.ResourceFile
	}
	if res.Ref.ProjectID == "" && b.st.scope.Kind == models.ScopeProject {
		res.Ref.ProjectID = b.st.scope.ID
	}

	if !b.resources[res.Ref.ID] {
		b.resources[res.Ref.ID] = true
		b.st.retain(res.Ref.ID)
	}
	return b.st.edits.Open(res), nil
}

// LoadResource fetches a resource through the client's Loader and opens it
func (b *Binding) LoadResource(ctx context.Context, ref models.ResourceRef) (models.EditableResource, error) {
	if b.client.loader == nil {
		return models.EditableResource{}, fmt.Errorf("no loader configured")
	}
	if ref.ProjectID == "" && b.st.scope.Kind == models.ScopeProject {
		ref.ProjectID = b.st.scope.ID
	}
	res, err := b.client.loader.Load(ctx, ref)
	if err != nil {
		return models.EditableResource{}, fmt.Errorf("failed to load %s %s: %w", ref.Kind, ref.ID, err)
	}
	return b.OpenResource(res)
}

// CloseResource stops editing. A write still inside the quiescence
// window is dropped once no other binding has the resource open.
func (b *Binding) CloseResource(id string) {
	b.mu.Lock()
	opened := b.resources[id]
	delete(b.resources, id)
	b.mu.Unlock()

	if opened {
		b.st.releaseResource(id)
	}
}

func (b *Binding) Resource(id string) (models.EditableResource, bool) {
	return b.st.edits.Get(id)
}

// SendEdit applies a local edit: broadcast now, persist after quiescence
func (b *Binding) SendEdit(resourceID, content string) error {
	b.mu.Lock()
	detached, opened := b.detached, b.resources[resourceID]
	b.mu.Unlock()

	if detached {
		return ErrDetached
	}
	if !opened {
		return coalescer.ErrNotOpen
	}
	return b.st.edits.OnLocalChange(resourceID, content)
}

// SetTitle renames a document; the title goes out with the next write
func (b *Binding) SetTitle(resourceID, title string) error {
	b.mu.Lock()
	detached, opened := b.detached, b.resources[resourceID]
	b.mu.Unlock()

	if detached {
		return ErrDetached
	}
	if !opened {
		return coalescer.ErrNotOpen
	}
	return b.st.edits.SetTitle(resourceID, title)
}

// SendChat sends a chat message. It reports false when the connection is
// not open; the message is not queued.
func (b *Binding) SendChat(text string) bool {
	if text == "" {
		return false
	}
	return b.client.conns.Send(b.st.getHandle(), models.ChatSend{Text: text})
}

// Presence returns the active users of the current connection, sorted
func (b *Binding) Presence() []string { return b.st.presence.Current() }

func (b *Binding) NotificationFlag(ch models.Channel) bool {
	return b.client.notices.Flag(b.st.scope, ch)
}

func (b *Binding) MarkSeen(ch models.Channel) { b.client.notices.MarkSeen(b.st.scope, ch) }
func (b *Binding) Focus(ch models.Channel)    { b.client.notices.OnFocus(b.st.scope, ch) }
func (b *Binding) Blur(ch models.Channel)     { b.client.notices.OnBlur(b.st.scope, ch) }

// Status returns the latest connection event of the scope
func (b *Binding) Status() models.StatusEvent {
	ev := b.st.lastStatus()
	ev.State = b.client.conns.State(b.st.scope)
	return ev
}

// Detach removes the binding's subscriptions and resources. The last
// binding of a scope closes its connection. Detach is idempotent.
func (b *Binding) Detach() {
	b.mu.Lock()
	if b.detached {
		b.mu.Unlock()
		return
	}
	b.detached = true
	subs := b.subs
	b.subs = nil
	ids := make([]string, 0, len(b.resources))
	for id := range b.resources {
		ids = append(ids, id)
	}
	b.resources = map[string]bool{}
	b.mu.Unlock()

	for _, sub := range subs {
		b.st.router.Unsubscribe(sub)
	}
	for _, id := range ids {
		b.st.releaseResource(id)
	}
	b.client.release(b)
	log.Printf("Detached binding %s from %s", b.id, b.st.scope)
}
