package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "VAULTD_CONFIG"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/vaultd"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with explicit precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load resolves and loads the configuration. Precedence:
// 1. explicitPath (from the --config flag), if non-empty
// 2. $VAULTD_CONFIG
// 3. ~/.config/vaultd/config.yaml
// A missing file at the default location is not an error; defaults apply.
// Callers validate after applying any flag overrides.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	if path != "" {
		config, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		l.logger.Debug("Loaded config", slog.String("path", path))
		return config, nil
	}

	userPath := l.userConfigPath()
	if userPath != "" {
		if config, err := LoadFromFile(userPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userPath))
			return config, nil
		} else if !os.IsNotExist(err) {
			l.logger.Warn("Failed to load user config",
				slog.String("path", userPath),
				slog.String("error", err.Error()))
		}
	}

	return DefaultConfig(), nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist.
func (l *Loader) EnsureUserConfig() error {
	userPath := l.userConfigPath()
	if userPath == "" {
		return fmt.Errorf("cannot determine user home directory")
	}

	if _, err := os.Stat(userPath); err == nil {
		return nil // Already exists
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userPath))
	return nil
}

// userConfigPath returns the path to the user config file.
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}
