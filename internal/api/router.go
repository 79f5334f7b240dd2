package api

import (
	"livesync/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Learning: Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", h.Health).Methods("GET")

	// Scope state and actions
	api.HandleFunc("/scopes", h.ListScopes).Methods("GET")
	api.HandleFunc("/scopes/{kind}/{id}", h.GetScope).Methods("GET")
	api.HandleFunc("/scopes/{kind}/{id}/chat", h.SendChat).Methods("POST")
	api.HandleFunc("/scopes/{kind}/{id}/focus/{channel}", h.Focus).Methods("POST")
	api.HandleFunc("/scopes/{kind}/{id}/focus/{channel}", h.Blur).Methods("DELETE")
	api.HandleFunc("/scopes/{kind}/{id}/seen/{channel}", h.MarkSeen).Methods("POST")

	// Save journal
	api.HandleFunc("/resources/{id}/saves", h.ListSaves).Methods("GET")

	// Live event stream
	r.HandleFunc("/ws/events", h.Events)

	return r
}
