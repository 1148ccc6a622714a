package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"filesync/internal/database/migrations"
	"filesync/internal/filesync"
	"filesync/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase stores release and backup file metadata, ignore entries and
// sync operation history in one SQLite file.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock filesync.Clock
}

// NewSQLiteDatabase opens path, which may be a file or ":memory:".
// The schema is not migrated; call Migrate or CheckMigrations.
func NewSQLiteDatabase(path string, clock filesync.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	s := NewSQLiteDatabaseFromDB(db, clock)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. A nil clock uses real time.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock filesync.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = filesync.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock}
}

// OpenConnection opens and configures a SQLite connection. It is exported for
// tools and tests that need the same PRAGMAs as the application.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// PRAGMAs and :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// prefixClause restricts relative_path to prefix and everything below it.
func prefixClause(prefix string) (string, []any) {
	if prefix == "" {
		return "", nil
	}
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return ` WHERE (relative_path = ? OR relative_path LIKE ? ESCAPE '\')`,
		[]any{prefix, escaper.Replace(prefix) + "/%"}
}

func notFoundIfNoRows(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, filesync.ErrNotFound)
	}
	return nil
}

// Release file operations

const releaseColumns = `id, project_code, version, category, relative_path, file_name, size, checksum, description, created_by, created_at, updated_at`

func (s *SQLiteDatabase) ListReleaseFiles(ctx context.Context, prefix string) ([]*model.ReleaseFile, error) {
	where, args := prefixClause(prefix)
	rows, err := s.db.QueryContext(ctx, `SELECT `+releaseColumns+` FROM release_files`+where+` ORDER BY relative_path`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing release files: %w", err)
	}
	defer rows.Close()

	var out []*model.ReleaseFile
	for rows.Next() {
		var f model.ReleaseFile
		if err := rows.Scan(&f.ID, &f.ProjectCode, &f.Version, &f.Category, &f.RelativePath, &f.FileName,
			&f.Size, &f.Checksum, &f.Description, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning release file: %w", err)
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing release files: %w", err)
	}
	return out, nil
}

func (s *SQLiteDatabase) FindReleaseFileByPath(ctx context.Context, relativePath string) (*model.ReleaseFile, error) {
	var f model.ReleaseFile
	err := s.db.QueryRowContext(ctx, `SELECT `+releaseColumns+` FROM release_files WHERE relative_path = ?`, relativePath).
		Scan(&f.ID, &f.ProjectCode, &f.Version, &f.Category, &f.RelativePath, &f.FileName,
			&f.Size, &f.Checksum, &f.Description, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding release file by path: %w", err)
	}
	return &f, nil
}

func (s *SQLiteDatabase) CreateReleaseFile(ctx context.Context, f *model.ReleaseFile) (int64, error) {
	now := s.clock.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO release_files (project_code, version, category, relative_path, file_name, size, checksum, description, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ProjectCode, f.Version, f.Category, f.RelativePath, f.FileName, f.Size, f.Checksum, f.Description, f.CreatedBy, now, now)
	if err != nil {
		return 0, fmt.Errorf("creating release file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading release file id: %w", err)
	}
	f.ID, f.CreatedAt, f.UpdatedAt = id, now, now
	return id, nil
}

func (s *SQLiteDatabase) UpdateReleaseFileContent(ctx context.Context, id int64, size int64, checksum string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE release_files SET size = ?, checksum = ?, updated_at = ? WHERE id = ?`,
		size, checksum, s.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("updating release file: %w", err)
	}
	return notFoundIfNoRows(res, "release file", id)
}

func (s *SQLiteDatabase) DeleteReleaseFile(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM release_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting release file: %w", err)
	}
	return notFoundIfNoRows(res, "release file", id)
}

// Backup file operations

const backupColumns = `id, database_name, backup_date, backup_type, relative_path, file_name, size, checksum, created_by, created_at, updated_at`

func (s *SQLiteDatabase) ListBackupFiles(ctx context.Context, prefix string) ([]*model.BackupFile, error) {
	where, args := prefixClause(prefix)
	rows, err := s.db.QueryContext(ctx, `SELECT `+backupColumns+` FROM backup_files`+where+` ORDER BY relative_path`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing backup files: %w", err)
	}
	defer rows.Close()

	var out []*model.BackupFile
	for rows.Next() {
		var f model.BackupFile
		if err := rows.Scan(&f.ID, &f.DatabaseName, &f.BackupDate, &f.BackupType, &f.RelativePath, &f.FileName,
			&f.Size, &f.Checksum, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning backup file: %w", err)
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing backup files: %w", err)
	}
	return out, nil
}

func (s *SQLiteDatabase) CreateBackupFile(ctx context.Context, f *model.BackupFile) (int64, error) {
	now := s.clock.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO backup_files (database_name, backup_date, backup_type, relative_path, file_name, size, checksum, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.DatabaseName, f.BackupDate, f.BackupType, f.RelativePath, f.FileName, f.Size, f.Checksum, f.CreatedBy, now, now)
	if err != nil {
		return 0, fmt.Errorf("creating backup file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading backup file id: %w", err)
	}
	f.ID, f.CreatedAt, f.UpdatedAt = id, now, now
	return id, nil
}

func (s *SQLiteDatabase) UpdateBackupFileContent(ctx context.Context, id int64, size int64, checksum string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE backup_files SET size = ?, checksum = ?, updated_at = ? WHERE id = ?`,
		size, checksum, s.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("updating backup file: %w", err)
	}
	return notFoundIfNoRows(res, "backup file", id)
}

func (s *SQLiteDatabase) DeleteBackupFile(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backup_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting backup file: %w", err)
	}
	return notFoundIfNoRows(res, "backup file", id)
}

// Ignore entries

func (s *SQLiteDatabase) ListIgnoreEntries(ctx context.Context, target filesync.Target) ([]*filesync.IgnoreEntry, error) {
	query := `SELECT target, relative_path, status, ignored_by, created_at FROM ignore_entries`
	var args []any
	if target != "" {
		query += ` WHERE target = ?`
		args = append(args, string(target))
	}
	query += ` ORDER BY target, relative_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing ignore entries: %w", err)
	}
	defer rows.Close()

	var out []*filesync.IgnoreEntry
	for rows.Next() {
		var e filesync.IgnoreEntry
		if err := rows.Scan(&e.Target, &e.RelativePath, &e.Status, &e.IgnoredBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ignore entry: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing ignore entries: %w", err)
	}
	return out, nil
}

func (s *SQLiteDatabase) PutIgnoreEntry(ctx context.Context, e *filesync.IgnoreEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ignore_entries (target, relative_path, status, ignored_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (target, relative_path) DO UPDATE SET
			status = excluded.status,
			ignored_by = excluded.ignored_by,
			created_at = excluded.created_at`,
		string(e.Target), e.RelativePath, string(e.Status), e.IgnoredBy, createdAt)
	if err != nil {
		return fmt.Errorf("saving ignore entry: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteIgnoreEntry(ctx context.Context, target filesync.Target, relativePath string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ignore_entries WHERE target = ? AND relative_path = ?`, string(target), relativePath)
	if err != nil {
		return false, fmt.Errorf("deleting ignore entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking affected rows: %w", err)
	}
	return n > 0, nil
}

// Sync operation tracking

func (s *SQLiteDatabase) CreateSyncOperation(ctx context.Context, operation, parameters string) (*model.SyncOperation, error) {
	op := &model.SyncOperation{
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  s.clock.Now(),
		Status:     "running",
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO sync_operations (operation, parameters, started_at, status) VALUES (?, ?, ?, ?)`,
		op.Operation, op.Parameters, op.StartedAt, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating sync operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading sync operation id: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishSyncOperation(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sync_operations SET finished_at = ?, status = ? WHERE id = ?`, s.clock.Now(), status, id)
	if err != nil {
		return fmt.Errorf("finishing sync operation: %w", err)
	}
	return notFoundIfNoRows(res, "sync operation", id)
}

// ListSyncOperations returns the most recent operations, newest first.
func (s *SQLiteDatabase) ListSyncOperations(ctx context.Context, limit int) ([]*model.SyncOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, parameters, started_at, finished_at, status
		FROM sync_operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync operations: %w", err)
	}
	defer rows.Close()

	var out []*model.SyncOperation
	for rows.Next() {
		var (
			op       model.SyncOperation
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &finished, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning sync operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		out = append(out, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sync operations: %w", err)
	}
	return out, nil
}

// RecordActions stores the per-item outcome of an apply in one transaction.
func (s *SQLiteDatabase) RecordActions(ctx context.Context, entries []*model.ActionLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.clock.Now()
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sync_action_log (operation_id, discrepancy_id, target, relative_path, action, success, message, actor, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.OperationID, e.DiscrepancyID, e.Target, e.RelativePath, e.Action, e.Success, e.Message, e.Actor, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("recording action: %w", err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading action log id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListActionLog(ctx context.Context, operationID int64) ([]*model.ActionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_id, discrepancy_id, target, relative_path, action, success, message, actor, created_at
		FROM sync_action_log WHERE operation_id = ? ORDER BY id`, operationID)
	if err != nil {
		return nil, fmt.Errorf("listing action log: %w", err)
	}
	defer rows.Close()

	var out []*model.ActionLogEntry
	for rows.Next() {
		var e model.ActionLogEntry
		if err := rows.Scan(&e.ID, &e.OperationID, &e.DiscrepancyID, &e.Target, &e.RelativePath, &e.Action,
			&e.Success, &e.Message, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning action log entry: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing action log: %w", err)
	}
	return out, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate brings the schema to the latest version.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a complete copy of the database to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ filesync.IgnoreStore = (*SQLiteDatabase)(nil)
