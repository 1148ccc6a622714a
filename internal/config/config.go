package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for filesync.
type Config struct {
	HostID      string           `toml:"host_id" yaml:"host_id"`
	BaseDir     string           `toml:"base_dir" yaml:"base_dir"`
	LogDir      string           `toml:"log_dir" yaml:"log_dir"`
	StorageRoot string           `toml:"storage_root" yaml:"storage_root"`
	Database    DatabaseConfig   `toml:"database" yaml:"database"`
	Catalog     CatalogConfig    `toml:"catalog" yaml:"catalog"`
	Sync        SyncConfig       `toml:"sync" yaml:"sync"`
	Filesystem  FilesystemConfig `toml:"filesystem" yaml:"filesystem"`
}

// DatabaseConfig configures the SQLite store for release/backup metadata,
// ignore entries and operation history.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" yaml:"type"`                                 // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty" yaml:"data_dir,omitempty"` // only used for type=sqlite
}

// CatalogConfig configures the resource file catalog.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CatalogConfig struct {
	Type string `toml:"type" yaml:"type"`                         // "sqlite" or "memory"
	Path string `toml:"path,omitempty" yaml:"path,omitempty"` // only used for type=sqlite
}

// SyncConfig tunes analyze and apply.
type SyncConfig struct {
	Workers           int      `toml:"workers" yaml:"workers"`           // apply concurrency; 0 = NumCPU
	ScanWorkers       int      `toml:"scan_workers" yaml:"scan_workers"` // hashing concurrency; 0 = NumCPU
	AllowFileDeletion bool     `toml:"allow_file_deletion" yaml:"allow_file_deletion"`
	Targets           []string `toml:"targets" yaml:"targets"` // enabled targets; empty = all
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore" yaml:"ignore"`
}

// Format selects the config file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatForPath picks YAML for .yaml/.yml files and TOML otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// NewConfig creates a new Config with defaults rooted at baseDir.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:      hostID,
		BaseDir:     baseDir,
		LogDir:      filepath.Join(baseDir, "log"),
		StorageRoot: filepath.Join(baseDir, "storage"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Catalog: CatalogConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "data", "catalog.db"),
		},
		Filesystem: FilesystemConfig{
			Ignore: []string{".DS_Store", "*.swp", "*.part"},
		},
	}
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.HostID == "" {
		errs = append(errs, errors.New("host_id is required"))
	}
	if c.StorageRoot == "" {
		errs = append(errs, errors.New("storage_root is required"))
	}
	if c.Sync.Workers < 0 || c.Sync.ScanWorkers < 0 {
		errs = append(errs, errors.New("sync workers must not be negative"))
	}
	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
// The zero value uses TOML.
type Manager struct {
	Format Format
}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	switch m.Format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	default:
		if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	switch m.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	default:
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}
	return nil
}

// ReadFromFile reads a Config from path, choosing the format by extension.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
