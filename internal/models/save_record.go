package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

/*
LEARNING: SAVE JOURNAL

Durable writes are fire-and-forget from the editor's point of view: a
failure is logged, the local content is kept, and the next edit tries
again. The journal keeps one row per attempt so an operator can answer
"was my file actually saved?" after the fact.
*/

// SaveRecord stores the outcome of one durable-write attempt
type SaveRecord struct {
	ID            string       `gorm:"type:char(27);primaryKey" json:"id"`
	ResourceID    string       `gorm:"type:varchar(64);not null;index:idx_resource_time" json:"resource_id"`
	Kind          ResourceKind `gorm:"type:varchar(16);not null" json:"kind"`
	ProjectID     string       `gorm:"type:varchar(64)" json:"project_id,omitempty"`
	ContentLength int          `gorm:"not null" json:"content_length"`
	Succeeded     bool         `gorm:"not null" json:"succeeded"`
	Error         string       `gorm:"type:text" json:"error,omitempty"`
	DurationMS    int64        `gorm:"not null" json:"duration_ms"`
	CreatedAt     time.Time    `gorm:"index:idx_resource_time" json:"created_at"`
}

// BeforeCreate generates KSUID
func (s *SaveRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = ksuid.New().String()
	}
	return nil
}

func (SaveRecord) TableName() string {
	return "save_records"
}
