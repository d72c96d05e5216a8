package config

import (
	"os"
	"path/filepath"
)

// StudioPath returns the root directory for studio data.
// It uses $STUDIO_PATH if set, otherwise defaults to ~/.studio.
func StudioPath() string {
	if v := os.Getenv("STUDIO_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".studio")
	}
	return filepath.Join(home, ".studio")
}

// ConfigPath returns the path to the studio config file.
func ConfigPath() string {
	return filepath.Join(StudioPath(), "config.jsonc")
}

// DotenvPath returns the path to the studio .env file.
func DotenvPath() string {
	return filepath.Join(StudioPath(), ".env")
}
