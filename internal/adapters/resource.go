package adapters

import (
	"context"
	"fmt"
	"strings"

	"filesync/internal/filesync"
	"filesync/internal/model"
)

// ResourceFileStore is the subset of the resource catalog used by the resource adapter.
type ResourceFileStore interface {
	ListResourceFiles(ctx context.Context, prefix string) ([]*model.ResourceFile, error)
	CreateResourceFile(ctx context.Context, f *model.ResourceFile) (int64, error)
	UpdateResourceFileContent(ctx context.Context, id int64, size int64, checksum string) error
	DeleteResourceFile(ctx context.Context, id int64) error
}

// ResourceAdapter syncs shared resources under "resources/shared".
// Registering requires a category attribute.
type ResourceAdapter struct {
	store ResourceFileStore
}

func NewResourceAdapter(store ResourceFileStore) *ResourceAdapter {
	return &ResourceAdapter{store: store}
}

func (a *ResourceAdapter) Target() filesync.Target       { return filesync.TargetResourceFile }
func (a *ResourceAdapter) BaseScanPath() string          { return "resources" }
func (a *ResourceAdapter) AllowedExtensions() []string   { return nil }
func (a *ResourceAdapter) ExcludedDirectories() []string { return []string{".cache"} }

func (a *ResourceAdapter) IsValidSyncPath(relativePath string) bool {
	parts, ok := segments(relativePath)
	return ok && len(parts) >= 2 && parts[0] == "shared"
}

func (a *ResourceAdapter) ListRegistered(ctx context.Context, subPath string) ([]*filesync.RegisteredMetadata, error) {
	files, err := a.store.ListResourceFiles(ctx, subPath)
	if err != nil {
		return nil, fmt.Errorf("listing resource files: %w", err)
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
				AttrCategory:           f.Category,
				AttrDescription:        f.Description,
				filesync.AttrCreatedBy: f.CreatedBy,
			}),
		})
	}
	return out, nil
}

func (a *ResourceAdapter) Register(ctx context.Context, fp *filesync.Fingerprint, extra map[string]string) (int64, error) {
	if !a.IsValidSyncPath(fp.RelativePath) {
		return 0, invalidPath(a.Target(), fp.RelativePath)
	}
	category := strings.TrimSpace(extra[AttrCategory])
	if category == "" {
		return 0, &filesync.MissingAttributeError{Target: a.Target(), Attribute: AttrCategory}
	}
	f := &model.ResourceFile{
		RelativePath: fp.RelativePath,
		FileName:     fp.FileName,
		Category:     category,
		Description:  extra[AttrDescription],
		Size:         fp.Size,
		Checksum:     fp.Checksum,
		CreatedBy:    createdBy(extra),
	}
	id, err := a.store.CreateResourceFile(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("registering resource file: %w", err)
	}
	return id, nil
}

func (a *ResourceAdapter) UpdateMetadata(ctx context.Context, id int64, fp *filesync.Fingerprint) error {
	return a.store.UpdateResourceFileContent(ctx, id, fp.Size, fp.Checksum)
}

func (a *ResourceAdapter) DeleteMetadata(ctx context.Context, id int64) error {
	return a.store.DeleteResourceFile(ctx, id)
}

var _ filesync.SyncAdapter = (*ResourceAdapter)(nil)
