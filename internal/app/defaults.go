package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigEnvVar names the environment variable that overrides the config path.
const ConfigEnvVar = "MEDIA_BROKER_CONFIG"

// DefaultConfigPath returns ~/.config/media-broker.toml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "media-broker.toml"), nil
}

// ResolveConfigPath returns the config file to load: flagPath if set, then
// MEDIA_BROKER_CONFIG, then the default path. allowMissing reports whether
// a missing file should fall back to defaults, which is only the case for
// the default path.
func ResolveConfigPath(flagPath string) (path string, allowMissing bool, err error) {
	if flagPath != "" {
		return flagPath, false, nil
	}
	if path := os.Getenv(ConfigEnvVar); path != "" {
		return path, false, nil
	}
	path, err = DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}
