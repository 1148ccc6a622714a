package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{"release_files", "backup_files", "ignore_entries", "sync_operations", "sync_action_log", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}
	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestVersion(t *testing.T) {
	db := openTestDB(t)

	v, err := Version(db)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != 0 {
		t.Errorf("Version() before migration = %d, want 0", v)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	latest, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if latest != 2 {
		t.Errorf("LatestVersion() = %d, want 2", latest)
	}
	if v, _ := Version(db); v != latest {
		t.Errorf("Version() after migration = %d, want %d", v, latest)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`
		INSERT INTO sync_action_log (operation_id, discrepancy_id, target, relative_path, action, success, actor, created_at)
		VALUES (999, 'd-1', 'RELEASE_FILE', 'a/1/sql/x.sql', 'REGISTER', 1, 'me', datetime('now'))
	`)
	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_RelativePathUnique(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := `INSERT INTO release_files (project_code, version, category, relative_path, file_name, size, checksum, created_by, created_at, updated_at)
		VALUES ('app', '1.0', 'sql', 'app/1.0/sql/a.sql', 'a.sql', 1, 'abc', 'me', datetime('now'), datetime('now'))`
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("Failed to insert first release file: %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("Expected unique constraint violation for duplicate relative_path, but insert succeeded")
	}
}

func TestSchema_IgnoreEntryKey(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := `INSERT INTO ignore_entries (target, relative_path, status, ignored_by, created_at) VALUES (?, 'x/y', 'MISSING', 'me', datetime('now'))`
	if _, err := db.Exec(insert, "RELEASE_FILE"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Exec(insert, "BACKUP_FILE"); err != nil {
		t.Errorf("same path under another target should be allowed: %v", err)
	}
	if _, err := db.Exec(insert, "RELEASE_FILE"); err == nil {
		t.Error("Expected primary key violation for duplicate (target, relative_path)")
	}
}

// openTestDB opens a single-connection in-memory database with foreign keys on.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	return db
}
