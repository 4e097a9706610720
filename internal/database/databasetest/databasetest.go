// Package databasetest opens throwaway databases for package tests.
package databasetest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/config"
	"carbon-scribe/marketplace/marketplace-backend/internal/database"
)

// NewDB opens a private in-memory sqlite database and applies migrations.
// The database is closed when the test finishes.
func NewDB(t testing.TB, migrations ...database.MigrateFunc) *gorm.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sqlite handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db, migrations...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}
