package config

import (
	"fmt"
	"regexp"
	"time"
)

const DefaultProfileName = "development"

// DefaultPollInterval is the refetch backstop interval used when a profile
// does not set poll_seconds.
const DefaultPollInterval = 10 * time.Second

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that a profile name conforms to naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// ResolveName determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. config.toml default_profile
// 3. "development"
func ResolveName(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultProfileName
}

// ResolveProfile returns the endpoints for the named profile, consulting
// config.toml first and falling back to the built-in defaults.
func ResolveProfile(name string) (Profile, error) {
	cfg, err := Load(ConfigPath())
	if err == nil {
		if p, ok := cfg.Profiles[name]; ok {
			return p, nil
		}
	}
	if p, ok := DefaultProfiles()[name]; ok {
		return p, nil
	}
	return Profile{}, fmt.Errorf("profile %q not found in %s", name, ConfigPath())
}

// PollInterval returns the profile's poll interval or the default.
func (p Profile) PollInterval() time.Duration {
	if p.PollSeconds > 0 {
		return time.Duration(p.PollSeconds) * time.Second
	}
	return DefaultPollInterval
}
