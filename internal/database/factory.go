package database

import (
	"fmt"
	"os"
	"path/filepath"

	"filesync/internal/config"
	"filesync/internal/filesync"
)

// NewDatabaseFromConfig creates the metadata database described by cfg.
// In-memory databases are migrated immediately since they start empty;
// file databases are left for the caller to check or migrate.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, hostID string, clock filesync.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, hostID+".db"), clock)
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", clock)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating in-memory database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
