package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Profile holds the backend endpoints for one deployment environment.
type Profile struct {
	APIBaseURL   string `toml:"api_base_url"`
	SocketURL    string `toml:"socket_url"`
	MediaBaseURL string `toml:"media_base_url"`
	// PollSeconds is the refetch backstop interval; 0 means the default (10).
	PollSeconds int `toml:"poll_seconds"`
}

// Config represents the global ~/.botadmin/config.toml.
type Config struct {
	DefaultProfile string             `toml:"default_profile"`
	Profiles       map[string]Profile `toml:"profiles"`
}

// DefaultProfiles returns the built-in environments used when no config
// file exists yet.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"development": {
			APIBaseURL:   "http://localhost:5001",
			SocketURL:    "ws://localhost:5001",
			MediaBaseURL: "http://localhost:5001/media",
		},
		"production": {
			APIBaseURL:   "https://apiserverjoin-production.up.railway.app",
			SocketURL:    "wss://apiserverjoin-production.up.railway.app",
			MediaBaseURL: "https://apiserverjoin-production.up.railway.app/media",
		},
	}
}

// Load reads config from the given path. Returns an error if the file is
// missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
