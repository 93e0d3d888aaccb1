// Package config manages omnigerrit configuration and its home directory.
// It handles loading, saving and initializing the configuration file, and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/pelletier/go-toml/v2"
)

const (
	HomeEnv      = "OMNIGERRIT_HOME"
	HomeDir      = ".omnigerrit"
	ConfigFile   = "config"
	DatabaseFile = "omnigerrit.db"
)

// Defaults for a fresh configuration.
const (
	DefaultGerritURL    = "https://gerrit.omnirom.org"
	DefaultOTAURL       = "https://dl.omnirom.org"
	DefaultBranch       = "android-14.0"
	DefaultBuildType    = "WEEKLY"
	DefaultPageSize     = 25
	DefaultPingInterval = 30 * time.Second
)

// Config represents the omnigerrit configuration
type Config struct {
	GerritURL    string   `toml:"gerrit_url"`
	OTAURL       string   `toml:"ota_url"`
	AllowListURL string   `toml:"allow_list_url"`
	Device       string   `toml:"device"`
	Version      string   `toml:"version"`
	BuildType    string   `toml:"build_type"`
	Branch       string   `toml:"branch"`
	PageSize     int      `toml:"page_size"`
	DenyPrefixes []string `toml:"deny_prefixes,omitempty"`
	PingInterval string   `toml:"ping_interval,omitempty"` // Go duration, e.g. "30s"
	path         string   // path to the home directory
}

// Default returns the configuration written by Initialize.
func Default() *Config {
	return &Config{
		GerritURL: DefaultGerritURL,
		OTAURL:    DefaultOTAURL,
		BuildType: DefaultBuildType,
		Branch:    DefaultBranch,
		PageSize:  DefaultPageSize,
	}
}

// LoadEnv loads a .env file from the working directory if present.
// godotenv does not override variables that are already set.
func LoadEnv() {
	_ = godotenv.Load()
}

// Home returns the omnigerrit home directory: $OMNIGERRIT_HOME, or
// ~/.omnigerrit.
func Home() (string, error) {
	if h := os.Getenv(HomeEnv); h != "" {
		return h, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(userHome, HomeDir), nil
}

// Load loads the configuration from the home directory and applies
// environment overrides.
func Load() (*Config, error) {
	home, err := Home()
	if err != nil {
		return nil, err
	}
	return LoadFrom(home)
}

// LoadFrom loads the configuration stored in dir.
func LoadFrom(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("not configured (run 'omnigerrit init')")
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = dir
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from OMNIGERRIT_* environment variables.
func (c *Config) ApplyEnv() {
	strs := map[string]*string{
		"OMNIGERRIT_GERRIT_URL":     &c.GerritURL,
		"OMNIGERRIT_OTA_URL":        &c.OTAURL,
		"OMNIGERRIT_ALLOW_LIST_URL": &c.AllowListURL,
		"OMNIGERRIT_DEVICE":         &c.Device,
		"OMNIGERRIT_VERSION":        &c.Version,
		"OMNIGERRIT_BUILD_TYPE":     &c.BuildType,
		"OMNIGERRIT_BRANCH":         &c.Branch,
		"OMNIGERRIT_PING_INTERVAL":  &c.PingInterval,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("OMNIGERRIT_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PageSize = n
		}
	}
	if v := os.Getenv("OMNIGERRIT_DENY_PREFIXES"); v != "" {
		c.DenyPrefixes = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration can drive a timeline.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"gerrit_url": c.GerritURL, "ota_url": c.OTAURL} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.AllowListURL != "" {
		if err := validateURL(c.AllowListURL); err != nil {
			return fmt.Errorf("allow_list_url: %w", err)
		}
	}
	if c.Device == "" {
		return errors.New("device is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be greater than 0, got %d", c.PageSize)
	}
	if _, err := c.PingEvery(); err != nil {
		return err
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// PingEvery returns the connectivity probe interval.
func (c *Config) PingEvery() (time.Duration, error) {
	if c.PingInterval == "" {
		return DefaultPingInterval, nil
	}
	d, err := time.ParseDuration(c.PingInterval)
	if err != nil {
		return 0, fmt.Errorf("ping_interval: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("ping_interval must be greater than 0")
	}
	return d, nil
}

// DeviceInfo returns the immutable device description of this configuration.
func (c *Config) DeviceInfo() models.Device {
	return models.Device{
		Name:      c.Device,
		Version:   c.Version,
		BuildType: c.BuildType,
		Branch:    c.Branch,
	}
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no home directory")
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// Path returns the path to the home directory
func (c *Config) Path() string {
	return c.path
}

// DatabasePath returns the path to the bbolt database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, DatabaseFile)
}

// Initialize creates dir with cfg as its configuration. It refuses to
// overwrite an existing configuration unless force is set.
func Initialize(dir string, cfg *Config, force bool) (*Config, error) {
	if !force {
		if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err == nil {
			return nil, fmt.Errorf("already configured at %s (use --force to overwrite)", dir)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	cfg.path = dir
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}
