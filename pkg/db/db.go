// Package db holds the gorm models and database bootstrap for the coaching
// engine: goals, journal entries, sessions, conversations, usage counters
// and personalities.
package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (or creates) the sqlite database at path and migrates the
// schema.
func Open(path string) (*gorm.DB, error) {
	database, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := AutoMigrate(database); err != nil {
		return nil, err
	}
	return database, nil
}

// OpenInMemory opens a fresh in-memory database. Used by tests.
func OpenInMemory() (*gorm.DB, error) {
	return Open(":memory:")
}

// AutoMigrate creates all tables.
func AutoMigrate(database *gorm.DB) error {
	err := database.AutoMigrate(
		&Goal{},
		&Milestone{},
		&ProgressUpdate{},
		&JournalEntry{},
		&CoachSession{},
		&Conversation{},
		&UsageRecord{},
		&Personality{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
