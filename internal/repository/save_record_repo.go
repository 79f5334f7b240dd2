package repository

import (
	"context"
	"errors"
	"fmt"

	"livesync/internal/models"

	"gorm.io/gorm"
)

// SaveRecordRepositoryImpl stores the durable-write journal using GORM.
// Returns concrete type - "Accept interfaces, return structs"; the services
// package declares the interface it needs.
type SaveRecordRepositoryImpl struct {
	db *gorm.DB
}

func NewSaveRecordRepository(db *gorm.DB) *SaveRecordRepositoryImpl {
	return &SaveRecordRepositoryImpl{db: db}
}

// Record appends one save attempt. The KSUID is generated in BeforeCreate.
func (r *SaveRecordRepositoryImpl) Record(ctx context.Context, rec *models.SaveRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to record save: %w", err)
	}
	return nil
}

// ListByResource returns the newest attempts for a resource first.
// Learning: KSUID only orders by the second, and a burst of saves lands in
// one second, so created_at leads and id breaks ties
func (r *SaveRecordRepositoryImpl) ListByResource(ctx context.Context, resourceID string, limit int) ([]*models.SaveRecord, error) {
	var records []*models.SaveRecord

	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list saves for %s: %w", resourceID, err)
	}

	return records, nil
}

// LastFailure returns the most recent failed attempt, or nil when the
// resource never failed to save
func (r *SaveRecordRepositoryImpl) LastFailure(ctx context.Context, resourceID string) (*models.SaveRecord, error) {
	var rec models.SaveRecord

	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND succeeded = ?", resourceID, false).
		Order("created_at DESC, id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last failure for %s: %w", resourceID, err)
	}

	return &rec, nil
}
