// ABOUTME: Configuration loading and parsing for calgate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete calgate configuration
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Google   GoogleConfig   `yaml:"google"`
	Callback CallbackConfig `yaml:"callback"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TelegramConfig holds the bot token and update polling configuration
type TelegramConfig struct {
	Token       string        `yaml:"token"`
	PollTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	PollTimeoutRaw string `yaml:"poll_timeout"`
}

// DatabaseConfig holds credential database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GoogleConfig holds the OAuth2 client configuration for the calendar provider
type GoogleConfig struct {
	// ClientSecretFile is the path to the OAuth2 client secret JSON
	// downloaded from the Google Cloud console.
	ClientSecretFile string `yaml:"client_secret_file"`

	// RedirectURL is the externally reachable URL of the authorization
	// callback endpoint, e.g. "https://bot.example.com:8480/oauth2callback".
	RedirectURL string `yaml:"redirect_url"`
}

// CallbackConfig holds the authorization callback listener configuration
type CallbackConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// EngineConfig holds conversation engine tuning knobs
type EngineConfig struct {
	// Workers is the number of update workers. Updates for the same chat
	// always land on the same worker, so per-chat ordering is preserved.
	Workers int `yaml:"workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding fields are absent.
const (
	DefaultPollTimeout = 30 * time.Second
	DefaultListenAddr  = ":8480"
	DefaultWorkers     = 4
)

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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Google.ClientSecretFile == "" {
		return fmt.Errorf("google.client_secret_file is required")
	}
	if c.Google.RedirectURL == "" {
		return fmt.Errorf("google.redirect_url is required")
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1")
	}
	return nil
}

// applyDefaults fills in defaults for optional fields left unset.
func (c *Config) applyDefaults() {
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = DefaultPollTimeout
	}
	if c.Callback.ListenAddr == "" {
		c.Callback.ListenAddr = DefaultListenAddr
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = DefaultWorkers
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Telegram.PollTimeoutRaw != "" {
		cfg.Telegram.PollTimeout, err = time.ParseDuration(cfg.Telegram.PollTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_timeout %q: %w", cfg.Telegram.PollTimeoutRaw, err)
		}
	}

	return nil
}
