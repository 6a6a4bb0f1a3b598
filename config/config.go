// Package config provides configuration loading and management for vaultd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use human-readable
// values like "5s" or "300ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the complete vaultd configuration.
type Config struct {
	Vault    VaultConfig    `yaml:"vault"`
	Watch    WatchConfig    `yaml:"watch"`
	Handlers HandlersConfig `yaml:"handlers"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Model    ModelConfig    `yaml:"model"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Log      LogConfig      `yaml:"log"`
}

// VaultConfig configures the watched content vault.
type VaultConfig struct {
	// Path is the vault root directory. Required.
	Path string `yaml:"path"`

	// AttachmentsDir is where imported artifacts are archived, relative to Path.
	AttachmentsDir string `yaml:"attachments_dir"`

	// ArchiveDir is where the organizer moves old processed notes, relative to Path.
	ArchiveDir string `yaml:"archive_dir"`

	// KillSwitchFile is the emergency-stop marker. While this file exists all
	// event processing is suspended. Relative paths resolve against Path.
	KillSwitchFile string `yaml:"kill_switch_file"`
}

// WatchConfig configures filesystem watching and debouncing.
type WatchConfig struct {
	// Debounce is how long a path must stay quiet before its event is emitted.
	Debounce Duration `yaml:"debounce"`

	// FileExtensions lists file extensions to watch (e.g., [".md"]).
	FileExtensions []string `yaml:"file_extensions"`

	// ExcludeDirs lists directory names to skip (e.g., [".git", ".obsidian"]).
	ExcludeDirs []string `yaml:"exclude_dirs"`

	// ExcludeGlobs lists doublestar patterns matched against vault-relative
	// paths (e.g., ["Archive/**", "**/*.tmp.md"]).
	ExcludeGlobs []string `yaml:"exclude_globs"`
}

// HandlersConfig configures feature handler behavior.
type HandlersConfig struct {
	// Cooldown is the minimum time between processing attempts per note.
	Cooldown Duration `yaml:"cooldown"`

	// HandleTimeout bounds a single handler invocation, external calls included.
	HandleTimeout Duration `yaml:"handle_timeout"`

	// MaxQuotes caps how many quotes the transcript handler extracts per note.
	MaxQuotes int `yaml:"max_quotes"`

	// MinQuoteLength drops extracted quotes shorter than this many characters.
	MinQuoteLength int `yaml:"min_quote_length"`

	// SuggestedLinks caps how many related notes the linker suggests.
	SuggestedLinks int `yaml:"suggested_links"`

	// ArchiveAfter is how old a processed note must be before the organizer
	// moves it into the archive.
	ArchiveAfter Duration `yaml:"archive_after"`

	// ScheduleInterval is how often scheduled handlers run.
	ScheduleInterval Duration `yaml:"schedule_interval"`
}

// MonitorConfig configures the read-only monitoring HTTP server.
type MonitorConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port the monitoring server binds to.
func (c MonitorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ModelConfig configures the LLM extraction collaborator.
type ModelConfig struct {
	// Name is the model identifier (e.g., "qwen2.5:14b").
	Name string `yaml:"name"`

	// Endpoint is an OpenAI-compatible API base URL.
	Endpoint string `yaml:"endpoint"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout is the maximum time to wait for model responses.
	Timeout Duration `yaml:"timeout"`

	// RequestsPerMinute rate-limits calls to the endpoint. 0 disables limiting.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// FetchConfig configures the transcript fetch collaborator.
type FetchConfig struct {
	// Timeout bounds a single fetch.
	Timeout Duration `yaml:"timeout"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent"`

	// MaxContentSize caps the fetched body in bytes.
	MaxContentSize int64 `yaml:"max_content_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Vault: VaultConfig{
			Path:           "",
			AttachmentsDir: "Attachments",
			ArchiveDir:     "Archive",
			KillSwitchFile: ".vaultd-disabled",
		},
		Watch: WatchConfig{
			Debounce:       Duration(5 * time.Second),
			FileExtensions: []string{".md"},
			ExcludeDirs:    []string{".git", ".obsidian", ".trash"},
			ExcludeGlobs:   []string{"Archive/**"},
		},
		Handlers: HandlersConfig{
			Cooldown:         Duration(5 * time.Minute),
			HandleTimeout:    Duration(2 * time.Minute),
			MaxQuotes:        10,
			MinQuoteLength:   20,
			SuggestedLinks:   5,
			ArchiveAfter:     Duration(30 * 24 * time.Hour),
			ScheduleInterval: Duration(1 * time.Hour),
		},
		Monitor: MonitorConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Model: ModelConfig{
			Name:              "qwen2.5:14b",
			Endpoint:          "http://localhost:11434/v1",
			Temperature:       0.3,
			MaxTokens:         2048,
			Timeout:           Duration(90 * time.Second),
			RequestsPerMinute: 10,
		},
		Fetch: FetchConfig{
			Timeout:        Duration(30 * time.Second),
			UserAgent:      "vaultd/1.0 (+https://github.com/c360studio/vaultd)",
			MaxContentSize: 10 * 1024 * 1024,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Vault.Path == "" {
		return fmt.Errorf("vault.path is required")
	}
	if c.Watch.Debounce.Std() <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}
	if c.Handlers.Cooldown.Std() < 0 {
		return fmt.Errorf("handlers.cooldown must not be negative")
	}
	if c.Handlers.HandleTimeout.Std() <= 0 {
		return fmt.Errorf("handlers.handle_timeout must be positive")
	}
	if c.Handlers.ScheduleInterval.Std() <= 0 {
		return fmt.Errorf("handlers.schedule_interval must be positive")
	}
	if c.Monitor.Port <= 0 || c.Monitor.Port > 65535 {
		return fmt.Errorf("monitor.port must be in 1-65535, got %d", c.Monitor.Port)
	}
	if c.Model.Endpoint == "" {
		return fmt.Errorf("model.endpoint is required")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Fetch.MaxContentSize <= 0 {
		return fmt.Errorf("fetch.max_content_size must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	return nil
}

// KillSwitchPath resolves the kill-switch marker path against the vault root.
func (c *Config) KillSwitchPath() string {
	if filepath.IsAbs(c.Vault.KillSwitchFile) {
		return c.Vault.KillSwitchFile
	}
	return filepath.Join(c.Vault.Path, c.Vault.KillSwitchFile)
}

// AttachmentsPath resolves the attachments directory against the vault root.
func (c *Config) AttachmentsPath() string {
	return filepath.Join(c.Vault.Path, c.Vault.AttachmentsDir)
}

// ArchivePath resolves the archive directory against the vault root.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.Vault.Path, c.Vault.ArchiveDir)
}

// LoadFromFile loads configuration from a YAML file, applying defaults for
// any fields the file leaves unset.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return config, nil
}

// SaveToFile writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
