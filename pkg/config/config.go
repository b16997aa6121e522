package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourcePage = "page"
	SourceExec = "exec"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds all configuration for listveil
type Config struct {
	// Where the watched items come from
	Source SourceConfig `yaml:"source"`

	// Pattern persistence
	Storage StorageConfig `yaml:"storage"`

	// Debounce window for reclassification after changes
	Watch WatchConfig `yaml:"watch"`

	// Container discovery bounds
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Control API
	API APIConfig `yaml:"api"`

	// Logging
	Log LogConfig `yaml:"log"`

	// StrictPatterns makes startup fail when a persisted pattern no
	// longer compiles, instead of excluding it from matching
	StrictPatterns bool `yaml:"strict_patterns"`
}

// SourceConfig selects and configures the item source
type SourceConfig struct {
	Kind string     `yaml:"kind"`
	Page PageConfig `yaml:"page"`
	Exec ExecConfig `yaml:"exec"`
}

// PageConfig configures the polled-page source
type PageConfig struct {
	URL               string        `yaml:"url" env:"LISTVEIL_URL"`
	ContainerSelector string        `yaml:"container_selector"`
	ItemSelector      string        `yaml:"item_selector"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MarkerClass       string        `yaml:"marker_class"`
}

// ExecConfig configures the wrapped-process source
type ExecConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// StorageConfig configures pattern persistence
type StorageConfig struct {
	Backend string `yaml:"backend" env:"LISTVEIL_STORAGE"`
	Path    string `yaml:"path" env:"LISTVEIL_STORAGE_PATH"`
	Key     string `yaml:"key"`
}

// WatchConfig configures the change watcher
type WatchConfig struct {
	Window time.Duration `yaml:"window" env:"LISTVEIL_WINDOW"`
}

// DiscoveryConfig bounds the container discovery loop
type DiscoveryConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// APIConfig configures the control API
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" env:"LISTVEIL_API_ADDR"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level" env:"LISTVEIL_LOG_LEVEL"`
	Preset string `yaml:"preset"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Kind: SourcePage,
			Page: PageConfig{
				ContainerSelector: "#feed",
				ItemSelector:      ".item",
				PollInterval:      5 * time.Second,
			},
		},
		Storage: StorageConfig{
			Backend: BackendFile,
			Path:    defaultDataPath(),
			Key:     "patterns",
		},
		Watch: WatchConfig{
			Window: 200 * time.Millisecond,
		},
		Discovery: DiscoveryConfig{
			PollInterval: 250 * time.Millisecond,
			Timeout:      30 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    "127.0.0.1:7341",
		},
		Log: LogConfig{
			Level:  "info",
			Preset: "console",
		},
	}
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try to load from config file
	configPath := getConfigPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	// Validate configuration
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// getConfigPath returns the config file path
func getConfigPath() string {
	// Check for explicit config path
	if path := os.Getenv("LISTVEIL_CONFIG"); path != "" {
		return path
	}

	// Check XDG config directory
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "listveil", "config.yaml")
	}

	// Fall back to home directory
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "listveil", "config.yaml")
	}

	return ""
}

// defaultDataPath returns where the pattern file lives by default
func defaultDataPath() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "listveil", "patterns.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "listveil", "patterns.yaml")
	}
	return "patterns.yaml"
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	// #nosec G304 - The config file path comes from trusted sources (env var or standard locations)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	if url := os.Getenv("LISTVEIL_URL"); url != "" {
		cfg.Source.Page.URL = url
	}

	if backend := os.Getenv("LISTVEIL_STORAGE"); backend != "" {
		cfg.Storage.Backend = backend
	}

	if path := os.Getenv("LISTVEIL_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}

	if addr := os.Getenv("LISTVEIL_API_ADDR"); addr != "" {
		cfg.API.Addr = addr
	}

	if window := os.Getenv("LISTVEIL_WINDOW"); window != "" {
		d, err := time.ParseDuration(window)
		if err != nil {
			return fmt.Errorf("invalid LISTVEIL_WINDOW: %w", err)
		}
		cfg.Watch.Window = d
	}

	if level := os.Getenv("LISTVEIL_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if strict := os.Getenv("LISTVEIL_STRICT"); strict != "" {
		switch strict {
		case "true", "1", "yes":
			cfg.StrictPatterns = true
		case "false", "0", "no":
			cfg.StrictPatterns = false
		default:
			return fmt.Errorf("invalid LISTVEIL_STRICT value: %q (use true/false)", strict)
		}
	}

	return nil
}

// validate validates the configuration
func validate(cfg *Config) error {
	switch cfg.Source.Kind {
	case SourcePage, SourceExec:
	default:
		return fmt.Errorf("source.kind must be %q or %q", SourcePage, SourceExec)
	}

	switch cfg.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be %q, %q or %q", BackendFile, BackendSQLite, BackendMemory)
	}

	if cfg.Storage.Backend != BackendMemory && cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the %s backend", cfg.Storage.Backend)
	}

	if cfg.Watch.Window < 0 {
		return fmt.Errorf("watch.window must be non-negative")
	}

	if cfg.Discovery.PollInterval < 0 {
		return fmt.Errorf("discovery.poll_interval must be non-negative")
	}

	if cfg.Discovery.Timeout < 0 {
		return fmt.Errorf("discovery.timeout must be non-negative")
	}

	if cfg.Source.Page.PollInterval < 0 {
		return fmt.Errorf("source.page.poll_interval must be non-negative")
	}

	return nil
}
