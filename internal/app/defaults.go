package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - DRIVESCOPE_CONFIG_PATH: config file location (default: ~/.config/drivescope.toml)
//   - DRIVESCOPE_HOME: base directory for drivescope data (default: ~/.local/share/drivescope)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking DRIVESCOPE_CONFIG_PATH
// env var first, then falling back to the default ~/.config/drivescope.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("DRIVESCOPE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "drivescope.toml"), nil
}

// getBaseDir returns the base directory for drivescope data, checking
// DRIVESCOPE_HOME env var first, then falling back to the XDG default
// ~/.local/share/drivescope.
func getBaseDir() (string, error) {
	if path := os.Getenv("DRIVESCOPE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "drivescope"), nil
}
