// ABOUTME: Configuration loading and parsing for coven-chat
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "COVEN_CHAT_CONFIG"

// Config represents the complete coven-chat configuration
type Config struct {
	Gateway Gateway `yaml:"gateway"`
	Auth    Auth    `yaml:"auth"`
	History History `yaml:"history"`
	Archive Archive `yaml:"archive"`
	Logging Logging `yaml:"logging"`
}

// Gateway holds the connection endpoint configuration
type Gateway struct {
	// URL is the websocket endpoint, ws:// or wss://. http(s) URLs are
	// rewritten when dialing.
	URL string `yaml:"url"`
	// RequestURL is the resource path sent with each chat request.
	RequestURL string `yaml:"request_url"`

	HandshakeTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	HandshakeTimeoutRaw string `yaml:"handshake_timeout"`
}

// Auth holds credential configuration
type Auth struct {
	// TokenPath points at the bearer token file. Empty means the default
	// coven token location; COVEN_TOKEN always wins over the file.
	TokenPath string `yaml:"token_path"`
}

// History holds conversation bootstrap configuration
type History struct {
	Conversation     string `yaml:"conversation"`
	DisableBootstrap bool   `yaml:"disable_bootstrap"`
}

// Archive holds transcript archive configuration
type Archive struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Gateway: Gateway{
			URL:        "ws://localhost:8080/chat",
			RequestURL: "/api/chat",
		},
		History: History{Conversation: "default"},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// DefaultPath returns the config file location: COVEN_CHAT_CONFIG if set,
// otherwise $XDG_CONFIG_HOME/coven/chat.yaml (falling back to ~/.config).
func DefaultPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "chat.yaml"), nil
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Gateway.HandshakeTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Gateway.HandshakeTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing handshake_timeout %q: %w", cfg.Gateway.HandshakeTimeoutRaw, err)
		}
		cfg.Gateway.HandshakeTimeout = d
	}

	return nil
}
