package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Profiles are named Config variants stored one file per profile under
// profiles/. Activating a profile replaces the live config; nothing else
// about the capture loop depends on them.

func ProfilesDir() string {
	return filepath.Join(DataDir(), "profiles")
}

func ListProfiles() ([]string, error) {
	entries, err := os.ReadDir(ProfilesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func SaveProfile(name string, cfg *Config) error {
	safe, err := sanitizeProfileName(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(ProfilesDir(), 0755); err != nil {
		return fmt.Errorf("create profiles dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return os.WriteFile(profilePath(safe), data, 0644)
}

func LoadProfile(name string) (*Config, error) {
	safe, err := sanitizeProfileName(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(profilePath(safe))
	if err != nil {
		return nil, fmt.Errorf("read profile %q: %w", safe, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", safe, err)
	}
	cfg.Normalize()
	return cfg, nil
}

func DeleteProfile(name string) error {
	safe, err := sanitizeProfileName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(profilePath(safe)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete profile %q: %w", safe, err)
	}
	return nil
}

func profilePath(name string) string {
	return filepath.Join(ProfilesDir(), name+".json")
}

// Reserved device names are rejected so profile files stay portable to
// Windows data directories.
var reservedProfileNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

func sanitizeProfileName(name string) (string, error) {
	base := strings.TrimSpace(name)
	base = strings.TrimSpace(strings.TrimSuffix(base, ".json"))

	if base == "" {
		return "", fmt.Errorf("profile name is empty")
	}
	if len(base) > 64 {
		return "", fmt.Errorf("profile name too long")
	}
	if base == "." || base == ".." {
		return "", fmt.Errorf("profile name %q not allowed", base)
	}
	if strings.HasSuffix(base, " ") || strings.HasSuffix(base, ".") {
		return "", fmt.Errorf("profile name must not end with a space or period")
	}
	if strings.ContainsAny(base, `\/:*?"<>|`) {
		return "", fmt.Errorf("profile name contains invalid characters")
	}
	for _, r := range base {
		if r < 0x20 {
			return "", fmt.Errorf("profile name contains control characters")
		}
	}
	if reservedProfileNames[strings.ToUpper(base)] {
		return "", fmt.Errorf("profile name %q is reserved", base)
	}
	return base, nil
}
