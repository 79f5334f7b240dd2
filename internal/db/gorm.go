package db

import (
	"fmt"
	"log"

	"livesync/internal/config"
	"livesync/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance holding the save journal
type GormDB struct {
	*gorm.DB
}

// NewGorm connects to Postgres and migrates the journal schema
func NewGorm(cfg *config.Config) (*GormDB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("✓ Journal database connected and migrated successfully")

	return &GormDB{db}, nil
}

// Migrate creates or updates the journal tables.
// Learning: GORM automatically creates/updates tables based on struct definitions
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.SaveRecord{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
