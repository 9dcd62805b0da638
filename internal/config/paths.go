package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const appDirName = "oh-opus"

// Dir returns the per-user configuration directory, creating it if needed.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	dir := filepath.Join(base, appDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// SettingsPath returns the default settings file location.
func SettingsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// LogPath returns the default log file location.
func LogPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "oh_opus.log"), nil
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || value[0] != '~' {
		return value, nil
	}
	if len(value) > 1 && value[1] != '/' && value[1] != filepath.Separator {
		return value, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(home, value[1:]), nil
}
