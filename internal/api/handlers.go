package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"livesync/internal/models"

	"github.com/gorilla/mux"
)

// Handler serves the local status API
// Learning: Uses INTERFACES defined in this package (consumer-driven)
type Handler struct {
	scopes   ScopeLister
	history  SaveHistory // nil when the journal is disabled
	stream   EventStream // nil disables /ws/events
	bindings map[models.Scope]ScopeBinding
}

func NewHandler(scopes ScopeLister, history SaveHistory, stream EventStream, bindings ...ScopeBinding) *Handler {
	h := &Handler{
		scopes:   scopes,
		history:  history,
		stream:   stream,
		bindings: make(map[models.Scope]ScopeBinding, len(bindings)),
	}
	for _, b := range bindings {
		h.bindings[b.Scope()] = b
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️  Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	observers := 0
	if h.stream != nil {
		observers = h.stream.Observers()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"scopes":    len(h.scopes.Scopes()),
		"observers": observers,
		"journal":   h.history != nil,
	})
}

func (h *Handler) ListScopes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scopes": h.scopes.Scopes()})
}

func scopeFromVars(r *http.Request) (models.Scope, error) {
	vars := mux.Vars(r)
	scope := models.Scope{Kind: models.ScopeKind(vars["kind"]), ID: vars["id"]}
	return scope, scope.Validate()
}

func (h *Handler) GetScope(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromVars(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, info := range h.scopes.Scopes() {
		if info.Scope == scope {
			writeJSON(w, http.StatusOK, info)
			return
		}
	}
	writeError(w, http.StatusNotFound, "scope not attached: "+scope.String())
}

// binding resolves the scope in the URL to an attached binding
func (h *Handler) binding(w http.ResponseWriter, r *http.Request) (ScopeBinding, bool) {
	scope, err := scopeFromVars(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	b, ok := h.bindings[scope]
	if !ok {
		writeError(w, http.StatusNotFound, "scope not attached: "+scope.String())
		return nil, false
	}
	return b, true
}

func channelFromVars(w http.ResponseWriter, r *http.Request) (models.Channel, bool) {
	ch := models.Channel(mux.Vars(r)["channel"])
	if !ch.Valid() {
		writeError(w, http.StatusBadRequest, "unknown channel: "+string(ch))
		return "", false
	}
	return ch, true
}

type chatRequest struct {
	Message string `json:"message"`
}

// SendChat posts a chat message on the scope's socket. Messages are not
// queued: 409 means the connection is not open right now.
func (h *Handler) SendChat(w http.ResponseWriter, r *http.Request) {
	b, ok := h.binding(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if !b.SendChat(req.Message) {
		writeError(w, http.StatusConflict, "connection is not open")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) Focus(w http.ResponseWriter, r *http.Request) {
	h.channelAction(w, r, func(b ScopeBinding, ch models.Channel) { b.Focus(ch) })
}

func (h *Handler) Blur(w http.ResponseWriter, r *http.Request) {
	h.channelAction(w, r, func(b ScopeBinding, ch models.Channel) { b.Blur(ch) })
}

func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	h.channelAction(w, r, func(b ScopeBinding, ch models.Channel) { b.MarkSeen(ch) })
}

func (h *Handler) channelAction(w http.ResponseWriter, r *http.Request, act func(ScopeBinding, models.Channel)) {
	b, ok := h.binding(w, r)
	if !ok {
		return
	}
	ch, ok := channelFromVars(w, r)
	if !ok {
		return
	}
	act(b, ch)
	writeJSON(w, http.StatusOK, map[string]any{"channel": ch, "flag": b.NotificationFlag(ch)})
}

func (h *Handler) ListSaves(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "save journal is disabled")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	id := mux.Vars(r)["id"]
	records, err := h.history.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*models.SaveRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource_id": id, "saves": records})
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusNotFound, "event stream is disabled")
		return
	}
	h.stream.ServeWS(w, r)
}
