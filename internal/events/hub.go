package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"livesync/internal/models"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

/*
LEARNING: LOCAL EVENT HUB

The client itself is headless. Anything that wants to watch it (a local
dashboard, a shell with websocat) connects to /ws/events on the status API
and receives a JSON stream of what the client does.

Key Concepts:
1. **Hub goroutine**: register/unregister/publish go through channels, so
   the observer set is only touched by one goroutine
2. **Buffered Send channel** per observer: a slow observer never blocks
   the sync path; when its buffer is full it is dropped
3. **Scope filter**: an observer may ask for one scope only
*/

type Kind string

const (
	KindStatus  Kind = "status"
	KindSave    Kind = "save"
	KindRemoved Kind = "removed"
)

// Event is one entry of the local event stream
type Event struct {
	ID    string       `json:"id"`
	Kind  Kind         `json:"kind"`
	Scope models.Scope `json:"scope"`
	At    time.Time    `json:"at"`
	Data  any          `json:"data,omitempty"`
}

// StatusData is the payload of a status event
type StatusData struct {
	State   models.ConnState `json:"state"`
	Attempt int              `json:"attempt"`
	Error   string           `json:"error,omitempty"`
}

// SaveData is the payload of a save event
type SaveData struct {
	Resource models.ResourceRef `json:"resource"`
	Phase    models.SavePhase   `json:"phase"`
	Error    string             `json:"error,omitempty"`
}

// Observer is one connected event-stream client
type Observer struct {
	ID     string
	Scope  *models.Scope // nil = every scope
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub
	Joined time.Time
}

func (o *Observer) wants(ev Event) bool {
	return o.Scope == nil || *o.Scope == ev.Scope
}

// Hub fans events out to observers
type Hub struct {
	observers  map[*Observer]bool
	register   chan *Observer
	unregister chan *Observer
	publish    chan Event
	mu         sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		observers:  make(map[*Observer]bool),
		register:   make(chan *Observer),
		unregister: make(chan *Observer),
		publish:    make(chan Event, 256),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop
func (h *Hub) Start() {
	log.Println("🔄 Starting event hub...")

	go func() {
		for {
			select {
			case <-h.done:
				return
			case o := <-h.register:
				h.handleRegister(o)
			case o := <-h.unregister:
				h.handleUnregister(o)
			case ev := <-h.publish:
				h.handlePublish(ev)
			}
		}
	}()
}

func (h *Hub) handleRegister(o *Observer) {
	h.mu.Lock()
	h.observers[o] = true
	n := len(h.observers)
	h.mu.Unlock()

	log.Printf("  Event observer %s connected (total: %d)", o.ID, n)
}

func (h *Hub) handleUnregister(o *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.observers[o]; ok {
		delete(h.observers, o)
		close(o.Send)
		log.Printf("  Event observer %s disconnected (remaining: %d)", o.ID, len(h.observers))
	}
}

func (h *Hub) handlePublish(ev Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		log.Printf("⚠️  Failed to encode %s event: %v", ev.Kind, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for o := range h.observers {
		if !o.wants(ev) {
			continue
		}
		select {
		case o.Send <- frame:
		default:
			// Buffer full - observer is slow or gone
			log.Printf("⚠️  Event observer %s buffer full, dropping it", o.ID)
			delete(h.observers, o)
			close(o.Send)
		}
	}
}

// Publish queues an event. It never blocks: when the hub is backed up or
// stopped the event is dropped.
func (h *Hub) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = ksuid.New().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case <-h.done:
	case h.publish <- ev:
	default:
		log.Printf("⚠️  Event hub backed up, dropping %s event", ev.Kind)
	}
}

// PublishStatus adapts a connection status event
func (h *Hub) PublishStatus(ev models.StatusEvent) {
	data := StatusData{State: ev.State, Attempt: ev.Attempt}
	if ev.Err != nil {
		data.Error = ev.Err.Error()
	}
	h.Publish(Event{Kind: KindStatus, Scope: ev.Scope, At: ev.At, Data: data})
}

// PublishSave adapts a durable-write progress event
func (h *Hub) PublishSave(ev models.SaveEvent) {
	data := SaveData{Resource: ev.Ref, Phase: ev.Phase}
	if ev.Err != nil {
		data.Error = ev.Err.Error()
	}
	h.Publish(Event{Kind: KindSave, Scope: ev.Scope, Data: data})
}

// PublishRemoved reports that the local user lost access to scope
func (h *Hub) PublishRemoved(scope models.Scope) {
	h.Publish(Event{Kind: KindRemoved, Scope: scope})
}

// Observers returns the number of connected observers
func (h *Hub) Observers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Shutdown stops the loop and disconnects every observer
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		log.Println("🛑 Shutting down event hub...")
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		for o := range h.observers {
			close(o.Send)
		}
		h.observers = make(map[*Observer]bool)
		log.Println("✓ Event hub shutdown complete")
	})
}
