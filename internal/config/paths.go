// Package config provides configuration loading and path management.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for dispatch data.
type Paths struct {
	Data   string // ~/.local/share/dispatch
	Config string // ~/.config/dispatch
	State  string // ~/.local/state/dispatch
}

// GetPaths returns the standard paths for dispatch data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "dispatch"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "dispatch"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "dispatch"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the storage directory for a workspace. Each workspace
// gets its own subtree so run IDs from different projects never mix.
func (p *Paths) StoragePath(workDir string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(workDir)))
	return filepath.Join(p.Data, "storage", hex.EncodeToString(sum[:8]))
}

// LockPath returns the directory holding cross-process scope lock files.
func (p *Paths) LockPath() string {
	return filepath.Join(p.State, "locks")
}

// LogPath returns the directory for log files written when logs are not
// printed.
func (p *Paths) LogPath() string {
	return filepath.Join(p.State, "logs")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "dispatch.json")
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".dispatch", "dispatch.json")
}
