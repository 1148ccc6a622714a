package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"filesync/internal/filesync"
	"filesync/internal/model"
)

// DefaultBackupType is recorded when REGISTER does not name one.
const DefaultBackupType = "FULL"

// BackupFileStore is the subset of the database used by the backup adapter.
type BackupFileStore interface {
	ListBackupFiles(ctx context.Context, prefix string) ([]*model.BackupFile, error)
	CreateBackupFile(ctx context.Context, f *model.BackupFile) (int64, error)
	UpdateBackupFileContent(ctx context.Context, id int64, size int64, checksum string) error
	DeleteBackupFile(ctx context.Context, id int64) error
}

// BackupAdapter syncs database dumps laid out as <database>/<YYYY-MM-DD>/<file>
// under "backup".
type BackupAdapter struct {
	store BackupFileStore
}

func NewBackupAdapter(store BackupFileStore) *BackupAdapter {
	return &BackupAdapter{store: store}
}

func (a *BackupAdapter) Target() filesync.Target { return filesync.TargetBackupFile }
func (a *BackupAdapter) BaseScanPath() string    { return "backup" }

func (a *BackupAdapter) AllowedExtensions() []string {
	return []string{".sql", ".dump", ".gz", ".tar.gz", ".bak"}
}

func (a *BackupAdapter) ExcludedDirectories() []string {
	return []string{"incoming", ".partial"}
}

func (a *BackupAdapter) IsValidSyncPath(relativePath string) bool {
	_, ok := parseBackupPath(relativePath)
	return ok
}

func parseBackupPath(relativePath string) ([]string, bool) {
	parts, ok := segments(relativePath)
	if !ok || len(parts) != 3 {
		return nil, false
	}
	if _, err := time.Parse(time.DateOnly, parts[1]); err != nil {
		return nil, false
	}
	return parts, true
}

func (a *BackupAdapter) ListRegistered(ctx context.Context, subPath string) ([]*filesync.RegisteredMetadata, error) {
	files, err := a.store.ListBackupFiles(ctx, subPath)
	if err != nil {
		return nil, fmt.Errorf("listing backup files: %w", err)
	}
	out := make([]*filesync.RegisteredMetadata, 0, len(files))
	for _, f := range files {
		out = append(out, &filesync.RegisteredMetadata{
			ID:           f.ID,
			Target:       a.Target(),
			RelativePath: f.RelativePath,
			FileName:     f.FileName,
			Size:         f.Size,
			Checksum:     f.Checksum,
			RegisteredAt: f.CreatedAt,
			Attributes: dropEmpty(map[string]string{
				AttrDatabase:           f.DatabaseName,
				AttrBackupDate:         f.BackupDate,
				AttrBackupType:         f.BackupType,
				filesync.AttrCreatedBy: f.CreatedBy,
			}),
		})
	}
	return out, nil
}

func (a *BackupAdapter) Register(ctx context.Context, fp *filesync.Fingerprint, extra map[string]string) (int64, error) {
	parts, ok := parseBackupPath(fp.RelativePath)
	if !ok {
		return 0, invalidPath(a.Target(), fp.RelativePath)
	}
	backupType := strings.ToUpper(strings.TrimSpace(extra[AttrBackupType]))
	if backupType == "" {
		backupType = DefaultBackupType
	}
	f := &model.BackupFile{
		DatabaseName: parts[0],
		BackupDate:   parts[1],
		BackupType:   backupType,
		RelativePath: fp.RelativePath,
		FileName:     fp.FileName,
		Size:         fp.Size,
		Checksum:     fp.Checksum,
		CreatedBy:    createdBy(extra),
	}
	id, err := a.store.CreateBackupFile(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("registering backup file: %w", err)
	}
	return id, nil
}

func (a *BackupAdapter) UpdateMetadata(ctx context.Context, id int64, fp *filesync.Fingerprint) error {
	return a.store.UpdateBackupFileContent(ctx, id, fp.Size, fp.Checksum)
}

func (a *BackupAdapter) DeleteMetadata(ctx context.Context, id int64) error {
	return a.store.DeleteBackupFile(ctx, id)
}

var _ filesync.SyncAdapter = (*BackupAdapter)(nil)
