package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newProjectServer echoes every frame back with the project id prefixed,
// and closes with code 4001 when it receives "kick".
func newProjectServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/ws/project/{id}/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		projectID := mux.Vars(r)["id"]
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "kick" {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4001, "kicked"))
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte(projectID+":"+string(data)))
		}
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := newProjectServer(t)
	dialer := NewWebSocketDialer(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := dialer.Dial(ctx, wsURL(srv, "/ws/project/42/?token=secret"))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(CloseNormal, "")

	if err := conn.WriteMessage([]byte(`{"type":"chat_message"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if want := `42:{"type":"chat_message"}`; string(got) != want {
		t.Errorf("echo = %q, want %q", got, want)
	}
}

func TestWebSocketDialRejectedHandshake(t *testing.T) {
	srv := newProjectServer(t)
	dialer := NewWebSocketDialer(5 * time.Second)

	_, err := dialer.Dial(context.Background(), wsURL(srv, "/ws/project/42/?token=wrong"))
	if err == nil {
		t.Fatal("Dial with a bad token should fail")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q should mention the 401 status", err)
	}
}

func TestCloseCodeFromServer(t *testing.T) {
	srv := newProjectServer(t)
	dialer := NewWebSocketDialer(5 * time.Second)

	conn, err := dialer.Dial(context.Background(), wsURL(srv, "/ws/project/7/?token=secret"))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(CloseNormal, "")

	if err := conn.WriteMessage([]byte("kick")); err != nil {
		t.Fatal(err)
	}
	_, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("expected a close error")
	}
	if code := CloseCode(err); code != 4001 {
		t.Errorf("CloseCode() = %d, want 4001", code)
	}
}

func TestCloseCodeDefaultsToAbnormal(t *testing.T) {
	if code := CloseCode(errors.New("connection reset by peer")); code != CloseAbnormal {
		t.Errorf("CloseCode() = %d, want %d", code, CloseAbnormal)
	}
}
