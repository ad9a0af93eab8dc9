// Package config loads the CLI configuration from a YAML or TOML file,
// applies defaults and environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultServerURL     = "http://localhost:8000"
	DefaultTimeout       = 30 * time.Second
	DefaultUploadTimeout = 5 * time.Minute
	DefaultMaxSize       = "10MiB"
	DefaultFormat        = "console"
	DefaultLogLevel      = "warn"
)

// Environment variables that override file settings.
const (
	EnvServerURL     = "MEDISCAN_SERVER_URL"
	EnvSessionFile   = "MEDISCAN_SESSION_FILE"
	EnvTimeout       = "MEDISCAN_TIMEOUT"
	EnvUploadTimeout = "MEDISCAN_UPLOAD_TIMEOUT"
	EnvLogLevel      = "MEDISCAN_LOG_LEVEL"
)

// Config represents the top-level configuration file structure
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Session SessionConfig `yaml:"session" toml:"session"`
	Upload  UploadConfig  `yaml:"upload" toml:"upload"`
	Output  OutputConfig  `yaml:"output" toml:"output"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// ServerConfig locates the analysis service.
type ServerConfig struct {
	URL           string        `yaml:"url" toml:"url"`
	Timeout       time.Duration `yaml:"timeout" toml:"timeout"`
	UploadTimeout time.Duration `yaml:"upload_timeout" toml:"upload_timeout"`
}

// SessionConfig controls where the session token is kept.
type SessionConfig struct {
	// File is the session file; empty uses the per-user default.
	File string `yaml:"file" toml:"file"`
}

// UploadConfig limits local files before upload.
type UploadConfig struct {
	// MaxSize is a human readable size ("10MiB", "5 MB"); "0" disables the check.
	MaxSize string `yaml:"max_size" toml:"max_size"`
}

// OutputConfig controls rendering.
type OutputConfig struct {
	Format  string `yaml:"format" toml:"format"`
	NoColor bool   `yaml:"no_color" toml:"no_color"`
}

// LogConfig sets the default log level.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// LoadFromFile reads a configuration file and returns the parsed Config.
// The format follows the extension: .yaml/.yml or .toml.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (supported: .yaml, .yml, .toml)", ext)
	}

	config.ApplyDefaults()
	return &config, nil
}

// Load reads filename, or the first existing default file when filename is
// empty. A missing default file yields the defaults.
func Load(filename string) (*Config, error) {
	if filename != "" {
		return LoadFromFile(filename)
	}
	for _, candidate := range DefaultPaths() {
		if _, err := os.Stat(candidate); err == nil {
			return LoadFromFile(candidate)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}
	return Default(), nil
}

// DefaultPaths returns the files Load looks for, in order.
func DefaultPaths() []string {
	dir := filepath.Join(userConfigDir(), "mediscan")
	return []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
		filepath.Join(dir, "config.toml"),
	}
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.Server.URL == "" {
		c.Server.URL = DefaultServerURL
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = DefaultTimeout
	}
	if c.Server.UploadTimeout == 0 {
		c.Server.UploadTimeout = DefaultUploadTimeout
	}
	if c.Upload.MaxSize == "" {
		c.Upload.MaxSize = DefaultMaxSize
	}
	if c.Output.Format == "" {
		c.Output.Format = DefaultFormat
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// ApplyEnv overrides settings from the environment. lookup is normally
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvServerURL); ok && strings.TrimSpace(v) != "" {
		c.Server.URL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvSessionFile); ok && strings.TrimSpace(v) != "" {
		c.Session.File = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTimeout); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Server.Timeout = d
	}
	if v, ok := lookup(EnvUploadTimeout); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvUploadTimeout, err)
		}
		c.Server.UploadTimeout = d
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.Log.Level = strings.TrimSpace(v)
	}
	return nil
}

// Validate checks the configuration for values the client cannot use.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.url: %q must be an http(s) URL", c.Server.URL)
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout: must not be negative")
	}
	if c.Server.UploadTimeout < 0 {
		return fmt.Errorf("server.upload_timeout: must not be negative")
	}
	if _, err := c.MaxUploadBytes(); err != nil {
		return err
	}
	switch c.Output.Format {
	case "console", "json":
	default:
		return fmt.Errorf("output.format: unsupported format %q (supported: console, json)", c.Output.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes; 0 means unlimited.
func (c *Config) MaxUploadBytes() (int64, error) {
	s := strings.TrimSpace(c.Upload.MaxSize)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("upload.max_size: %w", err)
	}
	return int64(n), nil
}

// ParseLevel converts a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("unknown level %q (supported: debug, info, warn, error)", name)
	}
}

// userConfigDir attempts to resolve a configuration directory in a portable way.
func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}
