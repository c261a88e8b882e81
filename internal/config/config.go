// ABOUTME: Configuration loading and parsing for registryd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete registryd configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Reputation ReputationConfig `yaml:"reputation"`
	Token      TokenConfig      `yaml:"token"`
	Sync       SyncConfig       `yaml:"sync"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// PublicURL is the base URL the sync orchestrator uses for its
	// self-addressed apply callback. Defaults to http://<http_addr>.
	PublicURL string `yaml:"public_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ReputationConfig holds the reputation service collaborator configuration
type ReputationConfig struct {
	BaseURL   string `yaml:"base_url"`
	ServiceID string `yaml:"service_id"`

	RequestTimeout    time.Duration `yaml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
}

// TokenConfig holds the token service collaborator configuration.
// The balance check at registration is best-effort: the result is logged
// against MinBalance but never gates the registration.
type TokenConfig struct {
	BaseURL    string `yaml:"base_url"`
	MinBalance uint64 `yaml:"min_balance"`
}

// SyncConfig holds sync orchestrator tuning
type SyncConfig struct {
	MaxRetries int `yaml:"max_retries"`

	RetryBackoff    time.Duration `yaml:"-"`
	JobRetention    time.Duration `yaml:"-"`
	RetryBackoffRaw string        `yaml:"retry_backoff"`
	JobRetentionRaw string        `yaml:"job_retention"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values for optional settings.
func (c *Config) applyDefaults() {
	if c.Server.PublicURL == "" && c.Server.HTTPAddr != "" {
		c.Server.PublicURL = "http://" + c.Server.HTTPAddr
	}
	if c.Reputation.RequestTimeout == 0 {
		c.Reputation.RequestTimeout = 10 * time.Second
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = 3
	}
	if c.Sync.RetryBackoff == 0 {
		c.Sync.RetryBackoff = 2 * time.Second
	}
	if c.Sync.JobRetention == 0 {
		c.Sync.JobRetention = 24 * time.Hour
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Reputation.BaseURL == "" {
		return fmt.Errorf("reputation.base_url is required")
	}
	if c.Reputation.ServiceID == "" {
		return fmt.Errorf("reputation.service_id is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Reputation.RequestTimeoutRaw != "" {
		cfg.Reputation.RequestTimeout, err = time.ParseDuration(cfg.Reputation.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Reputation.RequestTimeoutRaw, err)
		}
	}

	if cfg.Sync.RetryBackoffRaw != "" {
		cfg.Sync.RetryBackoff, err = time.ParseDuration(cfg.Sync.RetryBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing retry_backoff %q: %w", cfg.Sync.RetryBackoffRaw, err)
		}
	}

	if cfg.Sync.JobRetentionRaw != "" {
		cfg.Sync.JobRetention, err = time.ParseDuration(cfg.Sync.JobRetentionRaw)
		if err != nil {
			return fmt.Errorf("parsing job_retention %q: %w", cfg.Sync.JobRetentionRaw, err)
		}
	}

	return nil
}
