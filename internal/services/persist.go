package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"livesync/internal/middleware"
	"livesync/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// PersistService performs durable writes through the REST API and keeps a
// journal of every attempt. It implements coalescer.Persister and
// client.Loader.
type PersistService struct {
	store   ContentStore
	journal SaveJournal
}

// NewPersistService builds the service. journal may be nil, in which case
// attempts are only logged.
func NewPersistService(store ContentStore, journal SaveJournal) *PersistService {
	return &PersistService{store: store, journal: journal}
}

// Load fetches the current content of a resource
func (s *PersistService) Load(ctx context.Context, ref models.ResourceRef) (models.EditableResource, error) {
	ctx, span := middleware.StartSpan(ctx, "PersistService.Load",
		attribute.String("resource.id", ref.ID),
		attribute.String("resource.kind", string(ref.Kind)),
	)
	defer span.End()

	switch ref.Kind {
	case models.ResourceFile:
		f, err := s.store.GetFile(ctx, ref.ID)
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return models.EditableResource{}, err
		}
		return models.EditableResource{Ref: ref, Title: f.Name, LocalContent: f.Content}, nil

	case models.ResourceDocument:
		if ref.ProjectID == "" {
			return models.EditableResource{}, fmt.Errorf("document %s has no project", ref.ID)
		}
		d, err := s.store.GetDocument(ctx, ref.ProjectID, ref.ID)
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return models.EditableResource{}, err
		}
		return models.EditableResource{
			Ref:          ref,
			Title:        d.Title,
			LocalContent: d.Content,
			UpdatedAt:    d.UpdatedAt,
			UpdaterName:  d.LastUpdatedBy,
		}, nil
	}
	return models.EditableResource{}, fmt.Errorf("unknown resource kind %q", ref.Kind)
}

// Persist writes content and returns the server's metadata for it
func (s *PersistService) Persist(ctx context.Context, ref models.ResourceRef, title, content string) (*models.SaveResult, error) {
	ctx, span := middleware.StartSpan(ctx, "PersistService.Persist",
		attribute.String("resource.id", ref.ID),
		attribute.String("resource.kind", string(ref.Kind)),
		attribute.Int("content.size", len(content)),
	)
	defer span.End()

	start := time.Now()
	result, err := s.write(ctx, ref, title, content)
	elapsed := time.Since(start)

	if err != nil {
		middleware.AddSpanError(ctx, err)
	} else {
		log.Printf("✓ Saved %s %s (%d bytes, %dms)", ref.Kind, ref.ID, len(content), elapsed.Milliseconds())
	}
	s.journalAttempt(ctx, ref, content, elapsed, err)

	return result, err
}

func (s *PersistService) write(ctx context.Context, ref models.ResourceRef, title, content string) (*models.SaveResult, error) {
	switch ref.Kind {
	case models.ResourceFile:
		f, err := s.store.SaveFile(ctx, ref.ID, content)
		if err != nil {
			return nil, err
		}
		return &models.SaveResult{Title: f.Name}, nil

	case models.ResourceDocument:
		if ref.ProjectID == "" {
			return nil, fmt.Errorf("document %s has no project", ref.ID)
		}
		d, err := s.store.SaveDocument(ctx, ref.ProjectID, ref.ID, title, content)
		if err != nil {
			return nil, err
		}
		return &models.SaveResult{Title: d.Title, UpdatedAt: d.UpdatedAt, UpdaterName: d.LastUpdatedBy}, nil
	}
	return nil, fmt.Errorf("unknown resource kind %q", ref.Kind)
}

// journalAttempt never fails the save: a journal outage is only logged
func (s *PersistService) journalAttempt(ctx context.Context, ref models.ResourceRef, content string, elapsed time.Duration, saveErr error) {
	if s.journal == nil {
		return
	}

	rec := &models.SaveRecord{
		ResourceID:    ref.ID,
		Kind:          ref.Kind,
		ProjectID:     ref.ProjectID,
		ContentLength: len(content),
		Succeeded:     saveErr == nil,
		DurationMS:    elapsed.Milliseconds(),
	}
	if saveErr != nil {
		rec.Error = saveErr.Error()
	}

	if err := s.journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.Printf("⚠️  Failed to journal save of %s %s: %v", ref.Kind, ref.ID, err)
	}
}

// History returns the journaled attempts for a resource, newest first
func (s *PersistService) History(ctx context.Context, resourceID string, limit int) ([]*models.SaveRecord, error) {
	if s.journal == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.journal.ListByResource(ctx, resourceID, limit)
}
