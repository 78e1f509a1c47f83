// Package store persists meetings and recordings as versioned rows with gorm.
package store

import (
	"fmt"

	"github.com/dkeye/Lectern/internal/domain"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens driver ("sqlite" or "mysql") at dsn.
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch driver {
	case "sqlite", "":
		dial = sqlite.Open(dsn)
	case "mysql":
		dial = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	return db, nil
}

// Migrate creates or updates the meeting and recording tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Meeting{}, &domain.Recording{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
