package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	EnvConfigPath = "FILESYNC_CONFIG_PATH"
	EnvHome       = "FILESYNC_HOME"
)

// Defaults holds the paths used before a config file has been read.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults resolves EnvConfigPath (else ~/.config/filesync.toml) and
// EnvHome (else ~/.local/share/filesync). A config file ending in .yaml or
// .yml is read as YAML.
func GetDefaults() (Defaults, error) {
	configPath, err := envOrHome(EnvConfigPath, ".config", "filesync.toml")
	if err != nil {
		return Defaults{}, err
	}
	baseDir, err := envOrHome(EnvHome, ".local", "share", "filesync")
	if err != nil {
		return Defaults{}, err
	}
	return Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

func envOrHome(name string, rel ...string) (string, error) {
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving %s: cannot determine home directory: %w", name, err)
	}
	return filepath.Join(append([]string{home}, rel...)...), nil
}
