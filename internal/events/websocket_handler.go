package events

import (
	"context"
	"log"
	"net/http"
	"time"

	"livesync/internal/middleware"
	"livesync/internal/models"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// The status API binds to localhost; any origin on this machine may watch.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades a request to an event stream. The optional "scope"
// query parameter ("project:42") limits the stream to one scope.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var filter *models.Scope
	if raw := r.URL.Query().Get("scope"); raw != "" {
		scope, err := models.ParseScope(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter = &scope
	}

	ctx, span := middleware.StartSpan(r.Context(), "Events.Connect",
		attribute.String("scope.filter", r.URL.Query().Get("scope")),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade event stream: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	o := &Observer{
		ID:     ksuid.New().String(),
		Scope:  filter,
		Conn:   conn,
		Send:   make(chan []byte, 64),
		Hub:    h,
		Joined: time.Now(),
	}

	select {
	case h.register <- o:
	case <-h.done:
		conn.Close()
		return
	}

	// Learning: Separate goroutines prevent deadlock between reading and writing
	go o.WritePump()
	go o.ReadPump(context.WithoutCancel(ctx))
}

// ReadPump discards whatever the observer sends; it exists to process
// pongs and to notice the socket going away.
func (o *Observer) ReadPump(ctx context.Context) {
	defer func() {
		select {
		case o.Hub.unregister <- o:
		case <-o.Hub.done:
		}
		o.Conn.Close()
	}()

	o.Conn.SetReadLimit(512)
	o.Conn.SetReadDeadline(time.Now().Add(pongWait))
	o.Conn.SetPongHandler(func(string) error {
		o.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := o.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Event stream error (%s): %v", o.ID, err)
				middleware.AddSpanError(ctx, err)
			}
			return
		}
	}
}

// WritePump delivers queued events and keeps the socket alive with pings
func (o *Observer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-o.Send:
			o.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub dropped us
				o.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := o.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			o.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
