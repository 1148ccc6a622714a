package model

import "time"

// ReleaseFile is a registered release artifact:
// <project>/<version>/<category>/<file...> under the release root.
type ReleaseFile struct {
	ID           int64
	ProjectCode  string
	Version      string
	Category     string // sql, script, config or package
	RelativePath string // unique, relative to the release root
	FileName     string
	Size         int64
	Checksum     string // SHA-256, lowercase hex
	Description  string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BackupFile is a registered database dump:
// <database>/<YYYY-MM-DD>/<file> under the backup root.
type BackupFile struct {
	ID           int64
	DatabaseName string
	BackupDate   string // YYYY-MM-DD
	BackupType   string // FULL, INCREMENTAL, ...
	RelativePath string
	FileName     string
	Size         int64
	Checksum     string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ResourceFile is a shared resource kept in the resource catalog.
type ResourceFile struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	RelativePath string    `gorm:"uniqueIndex;not null"`
	FileName     string    `gorm:"not null"`
	Category     string    `gorm:"index;not null"`
	Description  string
	Size         int64     `gorm:"not null"`
	Checksum     string    `gorm:"size:64;not null"`
	CreatedBy    string    `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SyncOperation is one recorded CLI operation that mutated metadata.
type SyncOperation struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // running, success, error
}

// ActionLogEntry records the outcome of one apply item.
type ActionLogEntry struct {
	ID            int64
	OperationID   int64
	DiscrepancyID string
	Target        string
	RelativePath  string
	Action        string
	Success       bool
	Message       string
	Actor         string
	CreatedAt     time.Time
}
