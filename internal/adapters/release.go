package adapters

import (
	"context"
	"fmt"
	"slices"

	"filesync/internal/filesync"
	"filesync/internal/model"
)

// ReleaseFileStore is the subset of the database used by the release adapter.
type ReleaseFileStore interface {
	ListReleaseFiles(ctx context.Context, prefix string) ([]*model.ReleaseFile, error)
	FindReleaseFileByPath(ctx context.Context, relativePath string) (*model.ReleaseFile, error)
	CreateReleaseFile(ctx context.Context, f *model.ReleaseFile) (int64, error)
	UpdateReleaseFileContent(ctx context.Context, id int64, size int64, checksum string) error
	DeleteReleaseFile(ctx context.Context, id int64) error
}

var releaseCategories = []string{"sql", "script", "config", "package"}

// ReleaseAdapter syncs release artifacts laid out as
// <project>/<version>/<category>/<file...> under "release".
type ReleaseAdapter struct {
	store ReleaseFileStore
}

func NewReleaseAdapter(store ReleaseFileStore) *ReleaseAdapter {
	return &ReleaseAdapter{store: store}
}

func (a *ReleaseAdapter) Target() filesync.Target { return filesync.TargetReleaseFile }
func (a *ReleaseAdapter) BaseScanPath() string    { return "release" }

func (a *ReleaseAdapter) AllowedExtensions() []string {
	return []string{".sql", ".sh", ".yaml", ".yml", ".zip", ".tar.gz"}
}

func (a *ReleaseAdapter) ExcludedDirectories() []string {
	return []string{".git", "tmp"}
}

func (a *ReleaseAdapter) IsValidSyncPath(relativePath string) bool {
	_, ok := parseReleasePath(relativePath)
	return ok
}

func parseReleasePath(relativePath string) ([]string, bool) {
	parts, ok := segments(relativePath)
	if !ok || len(parts) < 4 {
		return nil, false
	}
	if !slices.Contains(releaseCategories, parts[2]) {
		return nil, false
	}
	return parts, true
}

func (a *ReleaseAdapter) ListRegistered(ctx context.Context, subPath string) ([]*filesync.RegisteredMetadata, error) {
	files, err := a.store.ListReleaseFiles(ctx, subPath)
	if err != nil {
		return nil, fmt.Errorf("listing release files: %w", err)
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
				AttrProjectCode:        f.ProjectCode,
				AttrVersion:            f.Version,
				AttrCategory:           f.Category,
				AttrDescription:        f.Description,
				filesync.AttrCreatedBy: f.CreatedBy,
			}),
		})
	}
	return out, nil
}

func (a *ReleaseAdapter) Register(ctx context.Context, fp *filesync.Fingerprint, extra map[string]string) (int64, error) {
	parts, ok := parseReleasePath(fp.RelativePath)
	if !ok {
		return 0, invalidPath(a.Target(), fp.RelativePath)
	}
	existing, err := a.store.FindReleaseFileByPath(ctx, fp.RelativePath)
	if err != nil {
		return 0, fmt.Errorf("registering release file: %w", err)
	}
	if existing != nil {
		return 0, fmt.Errorf("release file %s is already registered as id %d", fp.RelativePath, existing.ID)
	}
	f := &model.ReleaseFile{
		ProjectCode:  parts[0],
		Version:      parts[1],
		Category:     parts[2],
		RelativePath: fp.RelativePath,
		FileName:     fp.FileName,
		Size:         fp.Size,
		Checksum:     fp.Checksum,
		Description:  extra[AttrDescription],
		CreatedBy:    createdBy(extra),
	}
	id, err := a.store.CreateReleaseFile(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("registering release file: %w", err)
	}
	return id, nil
}

func (a *ReleaseAdapter) UpdateMetadata(ctx context.Context, id int64, fp *filesync.Fingerprint) error {
	return a.store.UpdateReleaseFileContent(ctx, id, fp.Size, fp.Checksum)
}

func (a *ReleaseAdapter) DeleteMetadata(ctx context.Context, id int64) error {
	return a.store.DeleteReleaseFile(ctx, id)
}

var _ filesync.SyncAdapter = (*ReleaseAdapter)(nil)
