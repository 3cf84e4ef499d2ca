package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration for a unify invocation: where the
// event store and people registry live, and the default source paths and
// view options ingestion/view commands fall back to when not overridden
// on the command line.
type Config struct {
	// EventStorePath is the SQLite event log. Defaults under the data dir.
	EventStorePath string `yaml:"event_store_path"`
	// PeopleRegistryPath is the JSON people registry. Defaults under the data dir.
	PeopleRegistryPath string `yaml:"people_registry_path"`

	Sources  SourcesConfig  `yaml:"sources"`
	Identity IdentityConfig `yaml:"identity"`
	View     ViewConfig     `yaml:"view"`
}

// SourcesConfig names the default locations of the raw source databases
// and directories ingestion collaborators read from.
type SourcesConfig struct {
	ChatDBPath string `yaml:"chat_db_path,omitempty"`
	CallDBPath string `yaml:"call_db_path,omitempty"`
	EmailDir   string `yaml:"email_dir,omitempty"`
}

// IdentityConfig names the contact sources handle expansion consults.
type IdentityConfig struct {
	VCardPath    string `yaml:"vcard_path,omitempty"`
	CSVPath      string `yaml:"csv_path,omitempty"`
	UseMacOS     bool   `yaml:"use_macos_contacts,omitempty"`
}

// ViewConfig holds default rendering options for the conversation and
// voice-manuscript views.
type ViewConfig struct {
	ViaCollapse bool `yaml:"via_collapse"`
	Context     int  `yaml:"context"`
}

// GetConfigDir returns the XDG-compliant config directory.
func GetConfigDir() (string, error) {
	if override := os.Getenv("UNIFY_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "unify"), nil
}

// GetDataDir returns the platform-specific data directory.
func GetDataDir() (string, error) {
	if override := os.Getenv("UNIFY_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "unify"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "unify"), nil
	}

	return filepath.Join(home, ".local", "share", "unify"), nil
}

// Load loads config from the config file, filling in data-dir-relative
// defaults for any path left unset.
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	var cfg Config
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	dataDir, err := GetDataDir()
	if err != nil {
		return nil, err
	}
	if cfg.EventStorePath == "" {
		cfg.EventStorePath = filepath.Join(dataDir, "events.db")
	}
	if cfg.PeopleRegistryPath == "" {
		cfg.PeopleRegistryPath = filepath.Join(dataDir, "people.json")
	}
	if cfg.View.Context == 0 {
		cfg.View.Context = 2
	}

	return &cfg, nil
}

// Save writes the config to the config file, creating the config
// directory (mode 0700) if needed.
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
