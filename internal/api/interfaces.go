package api

import (
	"context"
	"net/http"

	"livesync/internal/client"
	"livesync/internal/models"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

This package is the CONSUMER of the client, the persist service and the
event hub, so the interfaces it needs live HERE. Handlers only see the
methods they call, which keeps the fakes in handlers_test.go small.
*/

// ScopeLister snapshots attached scopes (client.Client)
type ScopeLister interface {
	Scopes() []client.ScopeInfo
}

// ScopeBinding is the slice of client.Binding the handlers drive
type ScopeBinding interface {
	Scope() models.Scope
	SendChat(text string) bool
	Focus(ch models.Channel)
	Blur(ch models.Channel)
	MarkSeen(ch models.Channel)
	NotificationFlag(ch models.Channel) bool
}

// SaveHistory reads the save journal (services.PersistService)
type SaveHistory interface {
	History(ctx context.Context, resourceID string, limit int) ([]*models.SaveRecord, error)
}

// EventStream serves the live event feed (events.Hub)
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Observers() int
}
