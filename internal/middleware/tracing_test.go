package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestTracingMiddlewareSetsRequestID(t *testing.T) {
	var seen string
	h := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	if seen == "" || seen == "unknown" {
		t.Fatal("request id missing from context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("X-Request-ID = %q, want %q", got, seen)
	}
}

func TestErrorRecoveryMiddleware(t *testing.T) {
	h := ErrorRecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	if got := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "unknown" {
		t.Errorf("GetRequestID = %q", got)
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestRouteTemplateFromMux(t *testing.T) {
	var route string
	r := mux.NewRouter()
	r.Use(TracingMiddleware)
	r.HandleFunc("/api/scopes/{kind}/{id}", func(w http.ResponseWriter, req *http.Request) {
		route = routeTemplate(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/scopes/project/42", nil))

	if route != "/api/scopes/{kind}/{id}" {
		t.Errorf("route = %q", route)
	}
}

func TestRouteTemplateWithoutMux(t *testing.T) {
	if got := routeTemplate(httptest.NewRequest(http.MethodGet, "/raw/path", nil)); got != "/raw/path" {
		t.Errorf("route = %q", got)
	}
}

func TestHealthChecksAreNotLogged(t *testing.T) {
	buf := captureLog(t)
	h := TracingMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if buf.Len() != 0 {
		t.Errorf("health check logged: %q", buf.String())
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/scopes", nil))
	if !strings.Contains(buf.String(), "GET /api/scopes - 200") {
		t.Errorf("log = %q", buf.String())
	}
}
