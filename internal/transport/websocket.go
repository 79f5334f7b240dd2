package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

/*
LEARNING: CLIENT-SIDE WEBSOCKET TRANSPORT

The connection manager talks to the network through two tiny interfaces
(Dialer, Conn) so its reconnect logic can be tested with in-memory fakes.
The gorilla/websocket implementation below follows the usual rules:
1. Exactly one goroutine reads (the manager's read loop)
2. Writes are serialized with a mutex - gorilla allows one writer at a time
3. Close sends a proper close frame so the peer sees the intended code
*/

const (
	// CloseNormal marks a deliberate shutdown; the manager never
	// reconnects after it.
	CloseNormal = websocket.CloseNormalClosure
	// CloseAbnormal is reported when the socket died without a close frame
	CloseAbnormal = websocket.CloseAbnormalClosure

	defaultWriteTimeout = 10 * time.Second
)

// Conn is one open socket
type Conn interface {
	// ReadMessage blocks until the next data frame or an error.
	// Close frames surface as errors; use CloseCode to classify them.
	ReadMessage() ([]byte, error)
	WriteMessage(frame []byte) error
	Close(code int, reason string) error
}

// Dialer opens sockets
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// CloseCode extracts the close code from a read error. Anything that is
// not a close frame counts as an abnormal closure.
func CloseCode(err error) int {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code
	}
	return CloseAbnormal
}

// WebSocketDialer dials with gorilla/websocket
type WebSocketDialer struct {
	dialer       *websocket.Dialer
	WriteTimeout time.Duration
}

func NewWebSocketDialer(handshakeTimeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		WriteTimeout: defaultWriteTimeout,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}
	return &WebSocketConn{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

// WebSocketConn adapts *websocket.Conn to Conn
type WebSocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
}

func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *WebSocketConn) WriteMessage(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close sends a close frame with code and tears the socket down.
// Safe to call more than once.
func (c *WebSocketConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
