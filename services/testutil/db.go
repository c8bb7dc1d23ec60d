// Package testutil provides the sqlite-backed gorm database the service
// suites run against.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens an in-memory sqlite database scoped to the calling test and
// migrates the given marketplace models (campaigns, gigs, ledger rows). The
// pool is pinned to a single connection: sqlite serializes writers anyway,
// and the shared cache keeps the schema visible across gorm sessions inside
// one test without leaking it to the next.
func NewTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	// Subtest names carry slashes, which the sqlite URI scheme trips over.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate test database: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}

	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
