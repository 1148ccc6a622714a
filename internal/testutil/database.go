package testutil

import (
	"testing"

	"filesync/internal/catalog"
	"filesync/internal/database"
	"filesync/internal/filesync"
)

// NewTestDatabase creates a migrated in-memory SQLite database.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T, clock filesync.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// NewTestCatalog creates an in-memory resource catalog closed at test end.
func NewTestCatalog(t *testing.T, clock filesync.Clock) *catalog.GormCatalog {
	t.Helper()

	c, err := catalog.Open(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
	})
	return c
}
