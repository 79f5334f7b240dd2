// Package transporttest provides in-memory sockets for testing code built
// on the transport interfaces.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"livesync/internal/transport"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("use of closed connection")

// Conn is an in-memory transport.Conn. The test plays the server: Push
// delivers a frame to the reader, Drop closes with a given code.
type Conn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	code      int

	mu         sync.Mutex
	written    [][]byte
	closedWith int
}

func NewConn() *Conn {
	return &Conn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *Conn) ReadMessage() ([]byte, error) {
	// Frames pushed before a drop are still delivered, in order
	select {
	case f := <-c.in:
		return f, nil
	default:
	}
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return nil, &websocket.CloseError{Code: c.code}
	}
}

func (c *Conn) WriteMessage(frame []byte) error {
	if c.IsClosed() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), frame...))
	return nil
}

func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closedWith == 0 {
		c.closedWith = code
	}
	c.mu.Unlock()
	c.Drop(code)
	return nil
}

// Push queues a frame as if the server sent it
func (c *Conn) Push(frame string) {
	c.in <- []byte(frame)
}

// Drop simulates the server closing the socket with code
func (c *Conn) Drop(code int) {
	c.closeOnce.Do(func() {
		c.code = code
		close(c.closed)
	})
}

func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ClosedWith returns the code the client closed with (0 if it did not)
func (c *Conn) ClosedWith() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedWith
}

// Written returns every frame the client sent
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// Dialer records every dial and hands out fresh Conns
type Dialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*Conn
	fail  error
}

func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.urls = append(d.urls, url)
	if d.fail != nil {
		return nil, d.fail
	}
	c := NewConn()
	d.conns = append(d.conns, c)
	return c, nil
}

// SetFail makes subsequent dials fail with err (nil restores success)
func (d *Dialer) SetFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Conn returns the i-th successfully dialed connection
func (d *Dialer) Conn(i int) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

// Last returns the most recent connection, or nil
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
