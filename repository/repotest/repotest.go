// Package repotest opens throwaway SQLite databases for tests.
package repotest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/ln_wallet/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns an isolated in-memory database with the core tables and any
// extra models migrated. A single connection serializes writers the way a
// file-backed SQLite deployment would.
func Open(t testing.TB, extra ...any) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(extra) > 0 {
		if err := db.AutoMigrate(extra...); err != nil {
			t.Fatalf("migrate extra: %v", err)
		}
	}
	return db
}
