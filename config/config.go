// Package config loads the daemon configuration.
//
// Config is stored at $XDG_CONFIG_HOME/addonsync/config.yaml (defaults to
// ~/.config/addonsync/config.yaml). Every field has a usable default; an
// absent file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"addonsync"

	"gopkg.in/yaml.v3"
)

const defaultCatalogURL = "https://catalog.addonsync.dev/update-site.json"

// Requirement is one declared add-on as spelled in the config file.
type Requirement struct {
	Name       string `yaml:"name"`
	MinVersion string `yaml:"min-version,omitempty"`
	Optional   bool   `yaml:"optional,omitempty"`
}

// Config holds the daemon settings.
type Config struct {
	CatalogURL string `yaml:"catalog-url,omitempty"`
	DataDir    string `yaml:"data-dir,omitempty"`
	Socket     string `yaml:"socket,omitempty"`
	DockerHost string `yaml:"docker-host,omitempty"` // empty means environment default
	LogLevel   string `yaml:"log-level,omitempty"`

	// DeclaredRequirements overrides the built-in declaration table when
	// non-empty.
	DeclaredRequirements []Requirement `yaml:"requirements,omitempty"`
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/addonsync/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "addonsync", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "addonsync", "config.yaml")
}

// Load reads the config file at path (empty means the default location)
// and applies defaults. A missing file yields the default config.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CatalogURL == "" {
		c.CatalogURL = defaultCatalogURL
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.Socket == "" {
		c.Socket = DefaultSocket()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.DeclaredRequirements))
	for i, r := range c.DeclaredRequirements {
		if r.Name == "" {
			return fmt.Errorf("requirement %d has no name", i)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("requirement %q declared twice", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}

// StatePath returns the SQLite state database location.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.db")
}

// Requirements returns the declared add-on set: the config override when
// present, the built-in table otherwise.
func (c *Config) Requirements() []addonsync.Dependency {
	if len(c.DeclaredRequirements) == 0 {
		return addonsync.DefaultRequirements()
	}
	deps := make([]addonsync.Dependency, len(c.DeclaredRequirements))
	for i, r := range c.DeclaredRequirements {
		deps[i] = addonsync.Dependency{
			Name:       r.Name,
			MinVersion: addonsync.ParseVersion(r.MinVersion),
			Optional:   r.Optional,
		}
	}
	return deps
}

// DefaultSocket returns the daemon socket path: $XDG_RUNTIME_DIR when set,
// /run otherwise.
func DefaultSocket() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "addonsync.sock")
	}
	return "/run/addonsync.sock"
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "addonsync")
	}
	if os.Geteuid() == 0 {
		return "/var/lib/addonsync"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".local", "share", "addonsync")
	}
	return filepath.Join(home, ".local", "share", "addonsync")
}
