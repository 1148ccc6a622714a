// Package catalog stores shared resource file metadata with gorm on SQLite.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"filesync/internal/config"
	"filesync/internal/filesync"
	"filesync/internal/model"
)

// GormCatalog owns the resource_files table.
type GormCatalog struct {
	db *gorm.DB
}

// Open opens (creating if needed) the catalog at path and migrates its schema.
// path may be ":memory:".
func Open(path string, clock filesync.Clock) (*GormCatalog, error) {
	if clock == nil {
		clock = filesync.RealClock{}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		NowFunc: clock.Now,
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	// :memory: databases are per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.ResourceFile{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating catalog: %w", err)
	}
	return &GormCatalog{db: db}, nil
}

// NewCatalogFromConfig creates the catalog described by cfg.
func NewCatalogFromConfig(cfg config.CatalogConfig, clock filesync.Clock) (*GormCatalog, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite catalog")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
		return Open(cfg.Path, clock)
	case "memory":
		return Open(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown catalog type: %s", cfg.Type)
	}
}

// ListResourceFiles returns resources at or below prefix, ordered by path.
func (c *GormCatalog) ListResourceFiles(ctx context.Context, prefix string) ([]*model.ResourceFile, error) {
	q := c.db.WithContext(ctx).Order("relative_path asc")
	if prefix != "" {
		escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
		q = q.Where(`relative_path = ? OR relative_path LIKE ? ESCAPE '\'`, prefix, escaped+"/%")
	}

	var files []*model.ResourceFile
	if err := q.Find(&files).Error; err != nil {
		return nil, fmt.Errorf("listing resource files: %w", err)
	}
	return files, nil
}

func (c *GormCatalog) CreateResourceFile(ctx context.Context, f *model.ResourceFile) (int64, error) {
	if err := c.db.WithContext(ctx).Create(f).Error; err != nil {
		return 0, fmt.Errorf("creating resource file: %w", err)
	}
	return f.ID, nil
}

func (c *GormCatalog) UpdateResourceFileContent(ctx context.Context, id int64, size int64, checksum string) error {
	res := c.db.WithContext(ctx).Model(&model.ResourceFile{}).
		Where("id = ?", id).
		Updates(map[string]any{"size": size, "checksum": checksum})
	if res.Error != nil {
		return fmt.Errorf("updating resource file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("resource file %d: %w", id, filesync.ErrNotFound)
	}
	return nil
}

func (c *GormCatalog) DeleteResourceFile(ctx context.Context, id int64) error {
	res := c.db.WithContext(ctx).Delete(&model.ResourceFile{}, id)
	if res.Error != nil {
		return fmt.Errorf("deleting resource file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("resource file %d: %w", id, filesync.ErrNotFound)
	}
	return nil
}

func (c *GormCatalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
