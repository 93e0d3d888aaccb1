package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Device = "oneplus9"
	cfg.Version = "14"
	return cfg
}

func TestInitializeAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")

	_, err := Initialize(dir, validConfig(), false)
	require.NoError(t, err)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "oneplus9", cfg.Device)
	assert.Equal(t, DefaultGerritURL, cfg.GerritURL)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, filepath.Join(dir, DatabaseFile), cfg.DatabasePath())

	dev := cfg.DeviceInfo()
	assert.Equal(t, "oneplus9", dev.Name)
	assert.Equal(t, "14", dev.Version)
	assert.Equal(t, DefaultBuildType, dev.BuildType)
	assert.Equal(t, DefaultBranch, dev.Branch)
}

func TestInitialize_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(dir, validConfig(), false)
	require.NoError(t, err)

	_, err = Initialize(dir, validConfig(), false)
	assert.Error(t, err)

	cfg := validConfig()
	cfg.Device = "pixel7"
	_, err = Initialize(dir, cfg, true)
	require.NoError(t, err)

	loaded, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "pixel7", loaded.Device)
}

func TestLoadFrom_Missing(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "omnigerrit init")
}

func TestLoadFrom_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("device = ["), 0644))

	_, err := LoadFrom(dir)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(dir, validConfig(), false)
	require.NoError(t, err)

	t.Setenv("OMNIGERRIT_DEVICE", "pixel7")
	t.Setenv("OMNIGERRIT_PAGE_SIZE", "10")
	t.Setenv("OMNIGERRIT_DENY_PREFIXES", "vendor_, android_device_ ,")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "pixel7", cfg.Device)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, []string{"vendor_", "android_device_"}, cfg.DenyPrefixes)
}

func TestHome(t *testing.T) {
	t.Setenv(HomeEnv, "/tmp/omni-home")
	home, err := Home()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/omni-home", home)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"missing device", func(c *Config) { c.Device = "" }, false},
		{"bad gerrit scheme", func(c *Config) { c.GerritURL = "ftp://gerrit" }, false},
		{"missing ota url", func(c *Config) { c.OTAURL = "" }, false},
		{"bad allow-list url", func(c *Config) { c.AllowListURL = "not a url" }, false},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, false},
		{"bad ping interval", func(c *Config) { c.PingInterval = "soon" }, false},
		{"negative ping interval", func(c *Config) { c.PingInterval = "-1s" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestPingEvery(t *testing.T) {
	cfg := validConfig()
	d, err := cfg.PingEvery()
	require.NoError(t, err)
	assert.Equal(t, DefaultPingInterval, d)

	cfg.PingInterval = "5s"
	d, err = cfg.PingEvery()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
}
