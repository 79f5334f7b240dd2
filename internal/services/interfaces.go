package services

import (
	"context"

	"livesync/internal/crud"
	"livesync/internal/models"
)

/*
LEARNING: GO INTERFACE BEST PRACTICE

"Accept interfaces, return structs" - interfaces are declared here, where
they are USED, not in the packages that implement them.

  crud.Client                          -> ContentStore
  repository.SaveRecordRepositoryImpl  -> SaveJournal

Only the methods this package calls are listed, which keeps the fakes in
the tests tiny.
*/

// ContentStore is the REST API that owns file and document content
type ContentStore interface {
	GetFile(ctx context.Context, id string) (*crud.File, error)
	SaveFile(ctx context.Context, id, content string) (*crud.File, error)
	GetDocument(ctx context.Context, projectID, id string) (*crud.Document, error)
	SaveDocument(ctx context.Context, projectID, id, title, content string) (*crud.Document, error)
}

// SaveJournal records every durable-write attempt
type SaveJournal interface {
	Record(ctx context.Context, rec *models.SaveRecord) error
	ListByResource(ctx context.Context, resourceID string, limit int) ([]*models.SaveRecord, error)
}
