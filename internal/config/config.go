// Package config loads factsync settings: defaults, then an optional YAML
// file, then FACTSYNC_* environment variables (a .env file in the working
// directory is honored). Command-line flags are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "factsync.yaml"

// Config holds every setting.
type Config struct {
	// Database is the SQLite store path.
	Database string `yaml:"database"`
	// Rules is a CUE rules file or directory.
	Rules string `yaml:"rules"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`

	Principal PrincipalConfig `yaml:"principal"`
}

// PrincipalConfig locates the key pair used for signing.
type PrincipalConfig struct {
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"private_key"`
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
)

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Database:  "factsync.db",
		Rules:     "rules",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is only an error when the caller named it explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		name   string
		target *string
	}{
		{"FACTSYNC_DATABASE", &c.Database},
		{"FACTSYNC_RULES", &c.Rules},
		{"FACTSYNC_LOG_LEVEL", &c.LogLevel},
		{"FACTSYNC_LOG_FORMAT", &c.LogFormat},
		{"FACTSYNC_PUBLIC_KEY", &c.Principal.PublicKey},
		{"FACTSYNC_PRIVATE_KEY", &c.Principal.PrivateKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.name); v != "" {
			*o.target = v
		}
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("config: database is required")
	}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("config: invalid log_level %q: must be one of %v", c.LogLevel, validLevels)
	}
	if !slices.Contains(validFormats, c.LogFormat) {
		return fmt.Errorf("config: invalid log_format %q: must be one of %v", c.LogFormat, validFormats)
	}
	if (c.Principal.PublicKey == "") != (c.Principal.PrivateKey == "") {
		return fmt.Errorf("config: principal needs both public_key and private_key")
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds a logger writing to w in the configured format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
