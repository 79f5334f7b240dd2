package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"livesync/internal/client"
	"livesync/internal/models"
)

type fakeLister struct{ infos []client.ScopeInfo }

func (f fakeLister) Scopes() []client.ScopeInfo { return f.infos }

type fakeBinding struct {
	scope models.Scope
	open  bool
	sent  []string
	flags map[models.Channel]bool
	focus map[models.Channel]bool
}

func newFakeBinding(scope models.Scope, open bool) *fakeBinding {
	return &fakeBinding{
		scope: scope,
		open:  open,
		flags: map[models.Channel]bool{models.ChannelChat: true},
		focus: map[models.Channel]bool{},
	}
}

func (b *fakeBinding) Scope() models.Scope { return b.scope }

func (b *fakeBinding) SendChat(text string) bool {
	if !b.open {
		return false
	}
	b.sent = append(b.sent, text)
	return true
}

func (b *fakeBinding) Focus(ch models.Channel) {
	b.focus[ch] = true
	b.flags[ch] = false
}

func (b *fakeBinding) Blur(ch models.Channel)                  { b.focus[ch] = false }
func (b *fakeBinding) MarkSeen(ch models.Channel)              { b.flags[ch] = false }
func (b *fakeBinding) NotificationFlag(ch models.Channel) bool { return b.flags[ch] }

type fakeHistory struct{}

func (fakeHistory) History(ctx context.Context, id string, limit int) ([]*models.SaveRecord, error) {
	if id != "9" {
		return nil, nil
	}
	return []*models.SaveRecord{{ID: "a", ResourceID: "9", Succeeded: true}}, nil
}

func setup(bindings ...ScopeBinding) http.Handler {
	lister := fakeLister{infos: []client.ScopeInfo{
		{Scope: models.ProjectScope("42"), State: models.StateOpen, Presence: []string{"1", "7"}, PresenceKnown: true},
	}}
	return SetupRoutes(NewHandler(lister, fakeHistory{}, nil, bindings...))
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad JSON %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	rec, out := do(t, setup(), "GET", "/api/health", "")
	if rec.Code != http.StatusOK || out["status"] != "ok" || out["scopes"] != float64(1) {
		t.Errorf("%d %v", rec.Code, out)
	}
}

func TestGetScope(t *testing.T) {
	h := setup()

	rec, out := do(t, h, "GET", "/api/scopes/project/42", "")
	if rec.Code != http.StatusOK || out["state"] != "open" {
		t.Errorf("%d %v", rec.Code, out)
	}

	if rec, _ := do(t, h, "GET", "/api/scopes/project/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown scope: status = %d", rec.Code)
	}
	if rec, _ := do(t, h, "GET", "/api/scopes/team/1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad kind: status = %d", rec.Code)
	}
}

func TestSendChat(t *testing.T) {
	b := newFakeBinding(models.ProjectScope("42"), true)
	h := setup(b)

	rec, _ := do(t, h, "POST", "/api/scopes/project/42/chat", `{"message":"hello"}`)
	if rec.Code != http.StatusAccepted || len(b.sent) != 1 || b.sent[0] != "hello" {
		t.Errorf("status = %d, sent = %v", rec.Code, b.sent)
	}

	if rec, _ := do(t, h, "POST", "/api/scopes/project/42/chat", `{"message":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty message: status = %d", rec.Code)
	}

	b.open = false
	if rec, _ := do(t, h, "POST", "/api/scopes/project/42/chat", `{"message":"lost"}`); rec.Code != http.StatusConflict {
		t.Errorf("closed connection: status = %d", rec.Code)
	}
}

func TestFocusAndBlur(t *testing.T) {
	b := newFakeBinding(models.ProjectScope("42"), true)
	h := setup(b)

	rec, out := do(t, h, "POST", "/api/scopes/project/42/focus/chat", "")
	if rec.Code != http.StatusOK || out["flag"] != false || !b.focus[models.ChannelChat] {
		t.Errorf("focus: %d %v", rec.Code, out)
	}

	if rec, _ := do(t, h, "DELETE", "/api/scopes/project/42/focus/chat", ""); rec.Code != http.StatusOK || b.focus[models.ChannelChat] {
		t.Errorf("blur: status = %d, focused = %v", rec.Code, b.focus[models.ChannelChat])
	}

	if rec, _ := do(t, h, "POST", "/api/scopes/project/42/focus/email", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown channel: status = %d", rec.Code)
	}
}

func TestListSaves(t *testing.T) {
	rec, out := do(t, setup(), "GET", "/api/resources/9/saves?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if saves := out["saves"].([]any); len(saves) != 1 {
		t.Errorf("saves = %v", saves)
	}

	_, out = do(t, setup(), "GET", "/api/resources/8/saves", "")
	if saves := out["saves"].([]any); len(saves) != 0 {
		t.Errorf("saves = %v, want empty list", saves)
	}
}

func TestEventsDisabled(t *testing.T) {
	if rec, _ := do(t, setup(), "GET", "/ws/events", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
