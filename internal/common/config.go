package common

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the harness configuration
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Browser   BrowserConfig   `toml:"browser"`
	Scenarios ScenariosConfig `toml:"scenarios"`
	Output    OutputConfig    `toml:"output"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServiceConfig describes how the application under test is launched
type ServiceConfig struct {
	Command        []string `toml:"command" validate:"required,min=1,dive,required"` // argv, first element is the program
	Dir            string   `toml:"dir"`                                             // Working directory (application root)
	Env            []string `toml:"env"`                                             // Extra KEY=VALUE entries appended to the inherited environment
	Host           string   `toml:"host" validate:"required"`
	Port           int      `toml:"port" validate:"min=1,max=65535"`
	StateFile      string   `toml:"state_file"`      // Persisted state deleted before start, relative to Dir
	ReadinessPath  string   `toml:"readiness_path"`  // Path probed by the readiness poller
	StartupTimeout string   `toml:"startup_timeout"` // e.g. "10s"
	ShutdownGrace  string   `toml:"shutdown_grace"`  // e.g. "5s" - wait after terminate before kill
}

// BrowserConfig configures each per-test browser session
type BrowserConfig struct {
	Headless       bool   `toml:"headless"`
	WindowWidth    int    `toml:"window_width" validate:"min=320"`
	WindowHeight   int    `toml:"window_height" validate:"min=240"`
	ExecPath       string `toml:"exec_path"`       // Optional Chrome binary, autodetected when empty
	WaitTimeout    string `toml:"wait_timeout"`    // Bound for every DOM wait, e.g. "5s"
	SessionTimeout string `toml:"session_timeout"` // Bound for a whole browser session, e.g. "2m"
}

// ScenariosConfig points at optional scenario input records
type ScenariosConfig struct {
	File string `toml:"file"` // YAML file with add_book / borrow_book records
}

// OutputConfig controls run artifacts
type OutputConfig struct {
	ResultsDir  string `toml:"results_dir" validate:"required"`
	Screenshots bool   `toml:"screenshots"` // Capture a screenshot when a scenario fails
}

// LoggingConfig controls the arbor logger
type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output" validate:"dive,oneof=console stdout file"`
}

// NewDefaultConfig creates a configuration matching the library app defaults
func NewDefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Command:        []string{"python3", "app.py"},
			Dir:            ".",
			Host:           "127.0.0.1",
			Port:           5000,
			StateFile:      "library.db",
			ReadinessPath:  "/",
			StartupTimeout: "10s",
			ShutdownGrace:  "5s",
		},
		Browser: BrowserConfig{
			Headless:       true,
			WindowWidth:    1280,
			WindowHeight:   720,
			WaitTimeout:    "5s",
			SessionTimeout: "2m",
		},
		Output: OutputConfig{
			ResultsDir:  "results",
			Screenshots: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Service configuration
	if dir := os.Getenv("SHELFCHECK_SERVICE_DIR"); dir != "" {
		config.Service.Dir = dir
	}
	if command := os.Getenv("SHELFCHECK_SERVICE_COMMAND"); command != "" {
		config.Service.Command = strings.Fields(command)
	}
	if host := os.Getenv("SHELFCHECK_SERVICE_HOST"); host != "" {
		config.Service.Host = host
	}
	if port := os.Getenv("SHELFCHECK_SERVICE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Service.Port = p
		}
	}
	if stateFile := os.Getenv("SHELFCHECK_STATE_FILE"); stateFile != "" {
		config.Service.StateFile = stateFile
	}

	// Browser configuration
	if chromePath := os.Getenv("SHELFCHECK_CHROME_PATH"); chromePath != "" {
		config.Browser.ExecPath = chromePath
	}
	if headless := os.Getenv("SHELFCHECK_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}

	// Output and logging
	if resultsDir := os.Getenv("SHELFCHECK_RESULTS_DIR"); resultsDir != "" {
		config.Output.ResultsDir = resultsDir
	}
	if level := os.Getenv("SHELFCHECK_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, scenarioFile string) {
	if port > 0 {
		config.Service.Port = port
	}
	if host != "" {
		config.Service.Host = host
	}
	if scenarioFile != "" {
		config.Scenarios.File = scenarioFile
	}
}

// Validate checks struct constraints and duration strings
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"service.startup_timeout": c.Service.StartupTimeout,
		"service.shutdown_grace":  c.Service.ShutdownGrace,
		"browser.wait_timeout":    c.Browser.WaitTimeout,
		"browser.session_timeout": c.Browser.SessionTimeout,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid configuration: %s=%q: %w", key, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid configuration: %s must be positive, got %s", key, value)
		}
	}

	return nil
}

// BaseURL returns the URL the application is expected to listen on
func (s ServiceConfig) BaseURL() string {
	return "http://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Address returns host:port
func (s ServiceConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// StartupTimeoutDuration parses StartupTimeout, falling back to 10s
func (s ServiceConfig) StartupTimeoutDuration() time.Duration {
	return parseDuration(s.StartupTimeout, 10*time.Second)
}

// ShutdownGraceDuration parses ShutdownGrace, falling back to 5s
func (s ServiceConfig) ShutdownGraceDuration() time.Duration {
	return parseDuration(s.ShutdownGrace, 5*time.Second)
}

// WaitTimeoutDuration parses WaitTimeout, falling back to 5s
func (b BrowserConfig) WaitTimeoutDuration() time.Duration {
	return parseDuration(b.WaitTimeout, 5*time.Second)
}

// SessionTimeoutDuration parses SessionTimeout, falling back to 2m
func (b BrowserConfig) SessionTimeoutDuration() time.Duration {
	return parseDuration(b.SessionTimeout, 2*time.Minute)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
