// Package paths provides centralized path resolution for garage.
// This package has NO internal imports (only stdlib) to avoid import cycles.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the name of the JSON config file.
const ConfigFileName = "garage.json"

// BaseDir returns the garage base directory (~/.garage).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".garage"), nil
}

// DataPath returns a path within the garage data directory (~/.garage/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// ConfigPath returns the active garage.json path.
// Priority: ./garage.json (current dir) > ~/.garage/garage.json
// Returns ("", nil) if no config exists - this is a valid state, not an error.
func ConfigPath() (string, error) {
	if _, err := os.Stat(ConfigFileName); err == nil {
		absPath, err := filepath.Abs(ConfigFileName)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return absPath, nil
	}

	globalPath, err := DataPath(ConfigFileName)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", nil
}

// DefaultConfigPath returns the default location for new configs (~/.garage/garage.json).
func DefaultConfigPath() (string, error) {
	return DataPath(ConfigFileName)
}

// DefaultDatabasePath is relative to the working directory, like the storage/ layout
// the seed and loader commands expect.
func DefaultDatabasePath() string {
	return filepath.Join("storage", "database.db")
}

// EnsureParentDir creates the directory that will hold path.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
