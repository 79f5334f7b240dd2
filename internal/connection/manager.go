package connection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"livesync/internal/auth"
	"livesync/internal/clock"
	"livesync/internal/middleware"
	"livesync/internal/models"
	"livesync/internal/transport"

	"github.com/cenkalti/backoff"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: ONE SOCKET PER SCOPE, EXPLICIT STATE MACHINE

The manager owns at most one live socket per scope. Its lifecycle is a
small finite state machine (see transitions below) instead of nested
callbacks:

  Closed -> Connecting -> Open -> PendingReconnect -> Connecting -> ...
                              \-> Closing -> Closed

Rules:
1. Open on a scope that already has a connection returns the same handle
2. No valid credential means no socket at all (the attempt is skipped)
3. Any close other than a normal closure schedules a reconnect after a
   flat delay; the previous timer is always cancelled first
4. A deliberate Close uses the normal-closure code, so the close handler
   knows not to reconnect
5. Send never blocks on a dead socket: if the connection is not open the
   frame is dropped (no outbound queue survives a reconnect)
*/

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultDialTimeout    = 10 * time.Second
)

var (
	ErrNoCredential = errors.New("no valid credential")
	ErrInvalidScope = errors.New("invalid scope")
)

var transitions = map[models.ConnState][]models.ConnState{
	models.StateClosed:           {models.StateConnecting},
	models.StateConnecting:       {models.StateOpen, models.StatePendingReconnect, models.StateClosing, models.StateClosed},
	models.StateOpen:             {models.StatePendingReconnect, models.StateClosing, models.StateClosed},
	models.StatePendingReconnect: {models.StateConnecting, models.StateClosing, models.StateClosed},
	models.StateClosing:          {models.StateClosed},
}

// Handle is returned by Open and identifies one logical connection
type Handle struct {
	ID    string
	Scope models.Scope
}

// MessageFunc receives raw frames in arrival order
type MessageFunc func(frame []byte)

// StatusFunc receives lifecycle transitions and transport errors
type StatusFunc func(models.StatusEvent)

type Config struct {
	// BaseURL is the ws:// or wss:// origin, e.g. "ws://localhost:8000"
	BaseURL        string
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	Clock          clock.Clock
}

// Connection is the manager's private record for one scope
type Connection struct {
	handle    *Handle
	state     models.ConnState
	conn      transport.Conn
	gen       uint64
	attempts  int
	reconnect *clock.Timer
	policy    backoff.BackOff
	onMessage MessageFunc
	onStatus  StatusFunc
}

func (c *Connection) transition(to models.ConnState) bool {
	for _, allowed := range transitions[c.state] {
		if allowed == to {
			c.state = to
			return true
		}
	}
	log.Printf("⚠️  [%s] Ignoring invalid transition %s -> %s", c.handle.Scope, c.state, to)
	return false
}

// Info is a read-only snapshot of a connection
type Info struct {
	HandleID string           `json:"handle_id"`
	Scope    models.Scope     `json:"scope"`
	State    models.ConnState `json:"state"`
	Attempts int              `json:"attempts"`
}

// Manager owns every connection of the process
type Manager struct {
	dialer transport.Dialer
	tokens auth.TokenSource
	cfg    Config

	mu    sync.Mutex
	conns map[models.Scope]*Connection
	wg    sync.WaitGroup
}

func NewManager(dialer transport.Dialer, tokens auth.TokenSource, cfg Config) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Manager{
		dialer: dialer,
		tokens: tokens,
		cfg:    cfg,
		conns:  make(map[models.Scope]*Connection),
	}
}

// notice is a status event captured under the lock and delivered after it
type notice struct {
	fn StatusFunc
	ev models.StatusEvent
}

func (n notice) deliver() {
	if n.fn != nil {
		n.fn(n.ev)
	}
}

func (m *Manager) noticeLocked(c *Connection, err error) notice {
	return notice{fn: c.onStatus, ev: models.StatusEvent{
		Scope:   c.handle.Scope,
		State:   c.state,
		Attempt: c.attempts,
		Err:     err,
		At:      m.cfg.Clock.Now(),
	}}
}

// credential returns a usable token or ""
func (m *Manager) credential() string {
	token := m.tokens.AccessToken()
	if token == "" || m.tokens.IsExpired(token) {
		return ""
	}
	return token
}

// Open connects scope, or returns the existing handle when the scope
// already has a connection. It returns ErrNoCredential without creating a
// transport when the token source has nothing valid.
func (m *Manager) Open(ctx context.Context, scope models.Scope, onMessage MessageFunc, onStatus StatusFunc) (*Handle, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}

	m.mu.Lock()
	if c, ok := m.conns[scope]; ok {
		m.mu.Unlock()
		return c.handle, nil
	}

	token := m.credential()
	if token == "" {
		m.mu.Unlock()
		log.Printf("WebSocket connection skipped (%s): no valid credential", scope)
		return nil, ErrNoCredential
	}

	c := &Connection{
		handle:    &Handle{ID: ksuid.New().String(), Scope: scope},
		state:     models.StateClosed,
		policy:    backoff.NewConstantBackOff(m.cfg.ReconnectDelay),
		onMessage: onMessage,
		onStatus:  onStatus,
	}
	m.conns[scope] = c
	c.transition(models.StateConnecting)
	n := m.noticeLocked(c, nil)
	m.mu.Unlock()

	n.deliver()
	m.dial(ctx, c, token)
	return c.handle, nil
}

func (m *Manager) socketURL(scope models.Scope, token string) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + scope.Path() + "?token=" + url.QueryEscape(token)
}

// dial opens the transport for a connection in the Connecting state
func (m *Manager) dial(ctx context.Context, c *Connection, token string) {
	scope := c.handle.Scope

	ctx, span := middleware.StartSpan(ctx, "Connection.Dial",
		attribute.String("scope", scope.String()),
		attribute.String("handle.id", c.handle.ID),
	)
	defer span.End()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	conn, err := m.dialer.Dial(dialCtx, m.socketURL(scope, token))
	cancel()

	m.mu.Lock()
	if m.conns[scope] != c || c.state != models.StateConnecting {
		// Closed while we were dialing
		m.mu.Unlock()
		if conn != nil {
			conn.Close(transport.CloseNormal, "closed during connect")
		}
		return
	}

	if err != nil {
		middleware.AddSpanError(ctx, err)
		log.Printf("⚠️  WebSocket dial failed (%s): %v", scope, err)
		n := m.scheduleReconnectLocked(c, err)
		m.mu.Unlock()
		n.deliver()
		return
	}

	c.conn = conn
	c.gen++
	gen := c.gen
	c.attempts = 0
	c.policy.Reset()
	c.transition(models.StateOpen)
	n := m.noticeLocked(c, nil)
	m.wg.Add(1)
	m.mu.Unlock()

	log.Printf("✓ WebSocket connection established (%s)", scope)

	// Deliver Open before the first read so subscribers can reset
	// per-connection state (presence) ahead of any frame.
	n.deliver()
	go m.readLoop(c, gen, conn)
}

// readLoop is the single consumer of a socket; it preserves frame order
func (m *Manager) readLoop(c *Connection, gen uint64, conn transport.Conn) {
	defer m.wg.Done()

	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(c, gen, err)
			return
		}
		if c.onMessage != nil {
			c.onMessage(frame)
		}
	}
}

func (m *Manager) handleClose(c *Connection, gen uint64, err error) {
	scope := c.handle.Scope
	code := transport.CloseCode(err)

	m.mu.Lock()
	if m.conns[scope] != c || c.gen != gen || c.state != models.StateOpen {
		// Deliberate close, or a transport we already replaced
		m.mu.Unlock()
		return
	}
	c.conn = nil

	if code == transport.CloseNormal {
		c.transition(models.StateClosed)
		delete(m.conns, scope)
		n := m.noticeLocked(c, nil)
		m.mu.Unlock()
		log.Printf("WebSocket connection closed (%s) by server, not reconnecting", scope)
		n.deliver()
		return
	}

	log.Printf("WebSocket connection closed (%s) with code %d", scope, code)
	n := m.scheduleReconnectLocked(c, err)
	m.mu.Unlock()
	n.deliver()
}

// scheduleReconnectLocked arms the reconnect timer, or gives up when the
// credential disappeared. Must be called with m.mu held.
func (m *Manager) scheduleReconnectLocked(c *Connection, cause error) notice {
	scope := c.handle.Scope

	c.reconnect.Stop()
	c.reconnect = nil

	if m.tokens.AccessToken() == "" {
		c.transition(models.StateClosed)
		delete(m.conns, scope)
		log.Printf("WebSocket not reconnecting (%s): logged out", scope)
		return m.noticeLocked(c, cause)
	}

	delay := c.policy.NextBackOff()
	if delay == backoff.Stop {
		c.transition(models.StateClosed)
		delete(m.conns, scope)
		log.Printf("WebSocket not reconnecting (%s): retry policy exhausted", scope)
		return m.noticeLocked(c, cause)
	}

	c.transition(models.StatePendingReconnect)
	c.reconnect = m.cfg.Clock.AfterFunc(delay, func() { m.redial(c) })
	log.Printf("Attempting WebSocket reconnect (%s) in %s...", scope, delay)
	return m.noticeLocked(c, cause)
}

func (m *Manager) redial(c *Connection) {
	scope := c.handle.Scope

	m.mu.Lock()
	if m.conns[scope] != c || c.state != models.StatePendingReconnect {
		m.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.attempts++

	token := m.credential()
	if token == "" {
		c.transition(models.StateClosed)
		delete(m.conns, scope)
		n := m.noticeLocked(c, ErrNoCredential)
		m.mu.Unlock()
		log.Printf("WebSocket reconnect skipped (%s): no valid credential", scope)
		n.deliver()
		return
	}

	c.transition(models.StateConnecting)
	n := m.noticeLocked(c, nil)
	m.mu.Unlock()

	n.deliver()
	m.dial(context.Background(), c, token)
}

// Send writes msg if the connection is open. It reports whether the
// frame was written; failures are logged and reported via onStatus.
func (m *Manager) Send(h *Handle, msg models.Outbound) bool {
	if h == nil {
		return false
	}

	m.mu.Lock()
	c, ok := m.conns[h.Scope]
	if !ok || c.handle != h || c.state != models.StateOpen || c.conn == nil {
		m.mu.Unlock()
		return false
	}
	conn := c.conn
	m.mu.Unlock()

	frame, err := models.EncodeOutbound(msg)
	if err != nil {
		log.Printf("⚠️  [%s] Dropping outbound frame: %v", h.Scope, err)
		return false
	}

	if err := conn.WriteMessage(frame); err != nil {
		log.Printf("⚠️  [%s] WebSocket write failed: %v", h.Scope, err)
		m.mu.Lock()
		n := m.noticeLocked(c, err)
		m.mu.Unlock()
		n.deliver()
		return false
	}
	return true
}

// Close shuts the connection down with a normal closure; no reconnect
// follows. Closing a stale handle is a no-op.
func (m *Manager) Close(h *Handle) {
	if h == nil {
		return
	}

	m.mu.Lock()
	c, ok := m.conns[h.Scope]
	if !ok || c.handle != h {
		m.mu.Unlock()
		return
	}
	c.reconnect.Stop()
	c.reconnect = nil
	c.transition(models.StateClosing)
	conn := c.conn
	c.conn = nil
	delete(m.conns, h.Scope)
	closing := m.noticeLocked(c, nil)
	m.mu.Unlock()

	closing.deliver()
	if conn != nil {
		if err := conn.Close(transport.CloseNormal, "client closing"); err != nil {
			log.Printf("⚠️  [%s] Error closing WebSocket: %v", h.Scope, err)
		}
	}

	m.mu.Lock()
	c.transition(models.StateClosed)
	closed := m.noticeLocked(c, nil)
	m.mu.Unlock()

	log.Printf("Closed WebSocket connection (%s)", h.Scope)
	closed.deliver()
}

// State returns the state of scope's connection (Closed when unknown)
func (m *Manager) State(scope models.Scope) models.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.conns[scope]; ok {
		return c.state
	}
	return models.StateClosed
}

// IsOpen reports whether frames can be sent on h right now
func (m *Manager) IsOpen(h *Handle) bool {
	if h == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[h.Scope]
	return ok && c.handle == h && c.state == models.StateOpen
}

// Connections snapshots every known connection, ordered by scope
func (m *Manager) Connections() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, Info{
			HandleID: c.handle.ID,
			Scope:    c.handle.Scope,
			State:    c.state,
			Attempts: c.attempts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope.String() < out[j].Scope.String() })
	return out
}

// Shutdown closes every connection and waits for the read loops to exit
func (m *Manager) Shutdown() {
	log.Println("🛑 Shutting down connection manager...")

	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.conns))
	for _, c := range m.conns {
		handles = append(handles, c.handle)
	}
	m.mu.Unlock()

	for _, h := range handles {
		m.Close(h)
	}
	m.wg.Wait()

	log.Println("✓ Connection manager shutdown complete")
}
