package testhelper

import (
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// OpenSQLite creates an in-memory database and migrates the given models.
// One open connection keeps the in-memory database alive for the test.
func OpenSQLite(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	// TranslateError matches the production gorm config, so constraint
	// violations surface as gorm.ErrDuplicatedKey here too.
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate models: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}
