package config

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.botadmin.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".botadmin")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// ProfileDir returns the profile-specific directory.
func ProfileDir(profile string) string {
	return filepath.Join(BaseDir(), "profiles", profile)
}

// CacheDBPath returns the roster/stats cache database path for a profile.
func CacheDBPath(profile string) string {
	return filepath.Join(ProfileDir(profile), "cache.db")
}

// LogDir returns the log directory for a profile.
func LogDir(profile string) string {
	return filepath.Join(ProfileDir(profile), "logs")
}

// LogPath returns the dashboard log file path.
func LogPath(profile string) string {
	return filepath.Join(LogDir(profile), "botadmin.log")
}

// EnsureDirs creates the profile directory tree with private permissions.
func EnsureDirs(profile string) error {
	dirs := []string{
		ProfileDir(profile),
		LogDir(profile),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
