package coalescer

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"livesync/internal/clock"
	"livesync/internal/middleware"
	"livesync/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: EDIT COALESCING (BROADCAST NOW, PERSIST LATER)

Every keystroke must reach other participants immediately, but calling
the CRUD layer on every keystroke would flood it. So each local change:
1. Updates local content right away
2. Sends a broadcast frame right away (fire-and-forget)
3. Re-arms a per-resource timer; only when the user pauses for the
   quiescence window does one durable write go out, carrying the content
   captured when the timer was armed

Conflicts are last-writer-wins on whole content. A remote update simply
overwrites local content and cancels our pending write, because the
content that write would have saved has been superseded.

The server relays every update to the whole group, sender included, so
our own broadcasts and saves come back to us. Each entry remembers what
it sent, in order; an inbound update matching one of those is an echo.
Echoes never touch LocalContent or the pending write, and a document echo
only refreshes the save metadata.
*/

const (
	DefaultWindow         = 2 * time.Second
	DefaultPersistTimeout = 10 * time.Second

	// maxEchoes bounds the sent-content history kept per resource
	maxEchoes = 32
)

var ErrNotOpen = errors.New("resource is not open")

// Persister performs durable writes (the CRUD layer)
type Persister interface {
	Persist(ctx context.Context, ref models.ResourceRef, title, content string) (*models.SaveResult, error)
}

// Broadcaster sends a live edit frame. It reports whether the frame went
// out; a closed connection simply drops it.
type Broadcaster interface {
	Broadcast(ref models.ResourceRef, content string) bool
}

type Config struct {
	Window         time.Duration
	PersistTimeout time.Duration
	Clock          clock.Clock
	// OnSave receives saving/saved/failed events. Optional.
	OnSave func(models.SaveEvent)
}

type entry struct {
	res   models.EditableResource
	timer *clock.Timer
	seq   uint64
	// sent holds contents we broadcast or wrote, oldest first
	sent []string
}

func (e *entry) remember(content string) {
	e.sent = append(e.sent, content)
	if len(e.sent) > maxEchoes {
		e.sent = e.sent[len(e.sent)-maxEchoes:]
	}
}

// consumeEcho reports whether content is one of ours. Echoes arrive in
// send order, so everything up to the match is dropped.
func (e *entry) consumeEcho(content string) bool {
	for i, s := range e.sent {
		if s == content {
			e.sent = e.sent[i+1:]
			return true
		}
	}
	return false
}

// Coalescer owns the editable resources of one scope
type Coalescer struct {
	scope       models.Scope
	persister   Persister
	broadcaster Broadcaster
	cfg         Config

	mu        sync.Mutex
	resources map[string]*entry
}

func New(scope models.Scope, persister Persister, broadcaster Broadcaster, cfg Config) *Coalescer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Coalescer{
		scope:       scope,
		persister:   persister,
		broadcaster: broadcaster,
		cfg:         cfg,
		resources:   make(map[string]*entry),
	}
}

// Open starts tracking a resource with its freshly loaded content.
// Opening an already open resource keeps the existing state.
func (c *Coalescer) Open(res models.EditableResource) models.EditableResource {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.resources[res.Ref.ID]; ok {
		return e.res
	}
	if res.LastPersistedContent == "" {
		res.LastPersistedContent = res.LocalContent
	}
	c.resources[res.Ref.ID] = &entry{res: res}
	return res
}

// OnLocalChange records a local edit, broadcasts it and (re)arms the
// durable write
func (c *Coalescer) OnLocalChange(resourceID, content string) error {
	c.mu.Lock()
	e, ok := c.resources[resourceID]
	if !ok {
		c.mu.Unlock()
		return ErrNotOpen
	}
	e.res.LocalContent = content
	e.seq++
	seq := e.seq
	e.timer.Stop()
	e.timer = nil
	ref := e.res.Ref
	c.mu.Unlock()

	sent := c.broadcaster != nil && c.broadcaster.Broadcast(ref, content)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resources[resourceID] != e || e.seq != seq {
		// Closed, or a newer edit already armed its own timer
		return nil
	}
	if sent {
		e.res.LastBroadcastContent = content
		e.remember(content)
	}
	title := e.res.Title
	e.timer = c.cfg.Clock.AfterFunc(c.cfg.Window, func() {
		c.flush(resourceID, e, seq, title, content)
	})
	return nil
}

// flush issues the durable write armed for seq, unless it was superseded
func (c *Coalescer) flush(resourceID string, e *entry, seq uint64, title, content string) {
	c.mu.Lock()
	if c.resources[resourceID] != e || e.seq != seq {
		c.mu.Unlock()
		return
	}
	e.timer = nil
	e.remember(content)
	ref := e.res.Ref
	c.mu.Unlock()

	c.emit(models.SaveEvent{Ref: ref, Phase: models.SaveSaving})

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PersistTimeout)
	defer cancel()
	ctx, span := middleware.StartSpan(ctx, "Coalescer.Persist",
		attribute.String("scope", c.scope.String()),
		attribute.String("resource.id", ref.ID),
		attribute.String("resource.kind", string(ref.Kind)),
		attribute.Int("content.size", len(content)),
	)
	defer span.End()

	result, err := c.persister.Persist(ctx, ref, title, content)
	if err != nil {
		// No rollback and no retry: the next edit arms a new write
		log.Printf("⚠️  [%s] Failed to persist %s %s: %v", c.scope, ref.Kind, ref.ID, err)
		middleware.AddSpanError(ctx, err)
		c.emit(models.SaveEvent{Ref: ref, Phase: models.SaveFailed, Err: err})
		return
	}

	c.mu.Lock()
	if c.resources[resourceID] == e {
		e.res.LastPersistedContent = content
		applyResult(&e.res, result)
	}
	c.mu.Unlock()

	c.emit(models.SaveEvent{Ref: ref, Phase: models.SaveSaved, Result: result})
}

// ApplyRemote overwrites local content with another participant's version.
// meta is non-nil when the update reflects a durable write (documents).
// An echo of our own content leaves local state and the pending write alone.
func (c *Coalescer) ApplyRemote(resourceID, content string, meta *models.SaveResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.resources[resourceID]
	if !ok {
		return false
	}
	if e.consumeEcho(content) {
		if meta != nil {
			e.res.LastPersistedContent = content
			applyResult(&e.res, meta)
		}
		return true
	}
	e.sent = nil
	e.res.LocalContent = content
	e.seq++
	e.timer.Stop()
	e.timer = nil
	if meta != nil {
		e.res.LastPersistedContent = content
		applyResult(&e.res, meta)
	}
	return true
}

func applyResult(res *models.EditableResource, result *models.SaveResult) {
	if result == nil {
		return
	}
	if result.Title != "" {
		res.Title = result.Title
	}
	if !result.UpdatedAt.IsZero() {
		res.UpdatedAt = result.UpdatedAt
	}
	if result.UpdaterName != "" {
		res.UpdaterName = result.UpdaterName
	}
}

// SetTitle changes a document title; it is sent with the next write
func (c *Coalescer) SetTitle(resourceID, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.resources[resourceID]
	if !ok {
		return ErrNotOpen
	}
	e.res.Title = title
	return nil
}

// Close stops tracking a resource. A pending write is cancelled, not
// flushed: unsaved content inside the quiescence window is lost.
func (c *Coalescer) Close(resourceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.resources[resourceID]
	if !ok {
		return false
	}
	if e.timer.Stop() {
		log.Printf("  [%s] Closed %s %s with an unsaved edit", c.scope, e.res.Ref.Kind, resourceID)
	}
	delete(c.resources, resourceID)
	return true
}

func (c *Coalescer) CloseAll() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.resources))
	for id := range c.resources {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Close(id)
	}
}

func (c *Coalescer) Get(resourceID string) (models.EditableResource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.resources[resourceID]
	if !ok {
		return models.EditableResource{}, false
	}
	return e.res, true
}

// Pending reports whether a durable write is armed for the resource
func (c *Coalescer) Pending(resourceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.resources[resourceID]
	return ok && e.timer != nil
}

// Resources snapshots every open resource, ordered by id
func (c *Coalescer) Resources() []models.EditableResource {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.EditableResource, 0, len(c.resources))
	for _, e := range c.resources {
		out = append(out, e.res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.ID < out[j].Ref.ID })
	return out
}

func (c *Coalescer) emit(ev models.SaveEvent) {
	ev.Scope = c.scope
	if c.cfg.OnSave != nil {
		c.cfg.OnSave(ev)
	}
}
