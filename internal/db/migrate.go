package db

import (
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model switchboard persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.Session{},
		&models.RunRecord{},
		&models.ActiveSession{},
		&models.ChatMeta{},
		&models.ScheduledJob{},
		&models.QueuedPromptJob{},
	}
}

// AutoMigrate creates or updates all tables. It is idempotent.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
