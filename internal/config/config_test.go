package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		DefaultProfile: "staging",
		Profiles: map[string]Profile{
			"staging": {
				APIBaseURL:   "https://staging.example.com",
				SocketURL:    "wss://staging.example.com",
				MediaBaseURL: "https://staging.example.com/media",
				PollSeconds:  5,
			},
		},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "staging" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "staging")
	}
	p, ok := loaded.Profiles["staging"]
	if !ok {
		t.Fatal("staging profile missing after round trip")
	}
	if p.APIBaseURL != "https://staging.example.com" {
		t.Errorf("APIBaseURL = %q", p.APIBaseURL)
	}
	if p.PollInterval() != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", p.PollInterval())
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "development"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"development", false},
		{"prod-eu_1", false},
		{"", true},
		{"Has Spaces", true},
		{"UPPER", true},
	}
	for _, tt := range tests {
		err := ValidateName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestPollIntervalDefault(t *testing.T) {
	var p Profile
	if p.PollInterval() != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", p.PollInterval(), DefaultPollInterval)
	}
}
