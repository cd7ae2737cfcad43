// ABOUTME: Configuration loading for gatewarden
// ABOUTME: Loads TOML config with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when the corresponding fields are absent.
const (
	DefaultDifficulty      = "medium"
	DefaultMaxResponseTime = 300 * time.Second
	DefaultSweepInterval   = 60 * time.Second
	DefaultDatabasePath    = "data/gatewarden.db"
)

// Config is the complete gatewarden configuration.
type Config struct {
	Matrix   MatrixConfig   `toml:"matrix"`
	Captcha  CaptchaConfig  `toml:"captcha"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
}

// MatrixConfig holds homeserver connection settings.
type MatrixConfig struct {
	Homeserver   string   `toml:"homeserver"`
	UserID       string   `toml:"user_id"`
	AccessToken  string   `toml:"access_token"`
	AllowedRooms []string `toml:"allowed_rooms"`
}

// CaptchaConfig holds challenge and expiry settings.
type CaptchaConfig struct {
	Difficulty string `toml:"difficulty"`

	MaxResponseTime time.Duration `toml:"-"`
	SweepInterval   time.Duration `toml:"-"`

	// Raw string values for TOML unmarshaling
	MaxResponseTimeRaw string `toml:"max_response_time"`
	SweepIntervalRaw   string `toml:"sweep_interval"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(string(data))
}

// Parse parses TOML config content, expanding ${VAR} environment references,
// applying defaults and validating the result.
func Parse(content string) (*Config, error) {
	expanded := expandEnvVars(content)

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// applyDefaults fills in optional fields.
func (c *Config) applyDefaults() {
	if c.Captcha.Difficulty == "" {
		c.Captcha.Difficulty = DefaultDifficulty
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values.
func (c *Config) parseDurations() error {
	var err error

	c.Captcha.MaxResponseTime = DefaultMaxResponseTime
	if c.Captcha.MaxResponseTimeRaw != "" {
		c.Captcha.MaxResponseTime, err = time.ParseDuration(c.Captcha.MaxResponseTimeRaw)
		if err != nil {
			return fmt.Errorf("parsing max_response_time %q: %w", c.Captcha.MaxResponseTimeRaw, err)
		}
	}

	c.Captcha.SweepInterval = DefaultSweepInterval
	if c.Captcha.SweepIntervalRaw != "" {
		c.Captcha.SweepInterval, err = time.ParseDuration(c.Captcha.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", c.Captcha.SweepIntervalRaw, err)
		}
	}

	return nil
}

// Validate checks that required config fields are present and valid.
// A missing access token is the fatal-at-startup credential case.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if _, err := url.Parse(c.Matrix.Homeserver); err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.access_token is required")
	}
	if c.Captcha.MaxResponseTime <= 0 {
		return fmt.Errorf("captcha.max_response_time must be positive")
	}
	if c.Captcha.SweepInterval <= 0 {
		return fmt.Errorf("captcha.sweep_interval must be positive")
	}
	return nil
}
