package crud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"livesync/internal/auth"

	"github.com/gorilla/mux"
)

// newTestServer serves one file (9) and one document (3 in project 42)
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()

	requireToken := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != "Bearer secret" {
				http.Error(w, `{"detail":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next(w, req)
		}
	}

	r.HandleFunc("/api/files/9/", requireToken(func(w http.ResponseWriter, req *http.Request) {
		content := "print(1)"
		if req.Method == http.MethodPatch {
			var body map[string]string
			json.NewDecoder(req.Body).Decode(&body)
			content = body["content"]
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 9, "name": "main.py", "content": content})
	})).Methods(http.MethodGet, http.MethodPatch)

	r.HandleFunc("/api/projects/42/documentation/3/", requireToken(func(w http.ResponseWriter, req *http.Request) {
		doc := map[string]any{
			"id":                       3,
			"title":                    "Notes",
			"content":                  "<p>hi</p>",
			"updated_at":               "2024-01-01T10:00:00Z",
			"last_updated_by_username": "ann",
		}
		if req.Method == http.MethodPut {
			var body map[string]string
			json.NewDecoder(req.Body).Decode(&body)
			doc["title"] = body["title"]
			doc["content"] = body["content"]
			doc["updated_at"] = "2024-01-02T08:00:00Z"
			doc["last_updated_by_username"] = "bob"
		}
		json.NewEncoder(w).Encode(doc)
	})).Methods(http.MethodGet, http.MethodPut)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, token string) *Client {
	srv := newTestServer(t)
	return NewClient(srv.URL+"/", auth.NewStaticSource(token, nil), 5*time.Second)
}

func TestGetAndSaveFile(t *testing.T) {
	c := newTestClient(t, "secret")
	ctx := context.Background()

	f, err := c.GetFile(ctx, "9")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if f.ID != "9" || f.Name != "main.py" || f.Content != "print(1)" {
		t.Errorf("file = %+v", f)
	}

	saved, err := c.SaveFile(ctx, "9", "print(2)")
	if err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	if saved.Content != "print(2)" {
		t.Errorf("saved content = %q", saved.Content)
	}
}

func TestGetAndSaveDocument(t *testing.T) {
	c := newTestClient(t, "secret")
	ctx := context.Background()

	d, err := c.GetDocument(ctx, "42", "3")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if d.Title != "Notes" || d.LastUpdatedBy != "ann" {
		t.Errorf("document = %+v", d)
	}

	saved, err := c.SaveDocument(ctx, "42", "3", "Spec", "<p>new</p>")
	if err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	if saved.Title != "Spec" || saved.Content != "<p>new</p>" || saved.LastUpdatedBy != "bob" {
		t.Errorf("saved = %+v", saved)
	}
	if want := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC); !saved.UpdatedAt.Equal(want) {
		t.Errorf("updated_at = %s, want %s", saved.UpdatedAt, want)
	}
}

func TestErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := newTestClient(t, "secret").GetFile(ctx, "404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file: err = %v, want ErrNotFound", err)
	}
	if _, err := newTestClient(t, "wrong").GetFile(ctx, "9"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("bad token: err = %v, want a status error", err)
	}
}
