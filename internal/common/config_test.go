package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, "http://127.0.0.1:5000", config.Service.BaseURL())
	assert.Equal(t, "library.db", config.Service.StateFile)
	assert.Equal(t, 10*time.Second, config.Service.StartupTimeoutDuration())
	assert.Equal(t, 5*time.Second, config.Service.ShutdownGraceDuration())
	assert.Equal(t, 1280, config.Browser.WindowWidth)
	assert.Equal(t, 720, config.Browser.WindowHeight)
	assert.Equal(t, 5*time.Second, config.Browser.WaitTimeoutDuration())
}

func TestLoadFromFilesPriority(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.toml")
	second := filepath.Join(dir, "second.toml")

	require.NoError(t, os.WriteFile(first, []byte(`
[service]
command = ["./library-fixture", "-port", "5001"]
port = 5001
startup_timeout = "20s"

[browser]
headless = false
`), 0644))
	require.NoError(t, os.WriteFile(second, []byte(`
[service]
port = 5002
`), 0644))

	t.Setenv("SHELFCHECK_SERVICE_HOST", "localhost")
	t.Setenv("SHELFCHECK_LOG_LEVEL", "DEBUG")

	config, err := LoadFromFiles(first, "", second)
	require.NoError(t, err)

	assert.Equal(t, []string{"./library-fixture", "-port", "5001"}, config.Service.Command)
	assert.Equal(t, 5002, config.Service.Port, "later files override earlier ones")
	assert.Equal(t, 20*time.Second, config.Service.StartupTimeoutDuration())
	assert.False(t, config.Browser.Headless)
	assert.Equal(t, "localhost", config.Service.Host, "env overrides files")
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "library.db", config.Service.StateFile, "unset keys keep defaults")

	ApplyFlagOverrides(config, 6000, "", "scenarios.yaml")
	assert.Equal(t, 6000, config.Service.Port)
	assert.Equal(t, "localhost", config.Service.Host)
	assert.Equal(t, "scenarios.yaml", config.Scenarios.File)
}

func TestLoadFromFilesErrors(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[service\nport = "), 0644))
	_, err = LoadFromFiles(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty command", func(c *Config) { c.Service.Command = nil }},
		{"port out of range", func(c *Config) { c.Service.Port = 70000 }},
		{"bad duration", func(c *Config) { c.Service.StartupTimeout = "soon" }},
		{"negative duration", func(c *Config) { c.Browser.WaitTimeout = "-1s" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"unknown log output", func(c *Config) { c.Logging.Output = []string{"syslog"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}
