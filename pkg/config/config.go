package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete file receiver configuration.
//
// This structure captures all configurable aspects of the service including:
//   - Logging configuration
//   - Server-wide settings (listening port, accept rate limiting)
//   - Intake settings (temp directory, origin allow-list)
//   - Receive journal configuration
//   - Archive sink configuration
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (PUFFER_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Intake controls how received transfers are staged and filtered
	Intake IntakeConfig `mapstructure:"intake"`

	// Journal configures the optional receive journal
	Journal JournalConfig `mapstructure:"journal"`

	// Archive configures the optional object storage sink
	Archive ArchiveConfig `mapstructure:"archive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// Port is the TCP port the receiver listens on.
	// 0 asks the kernel for a free port (useful in tests only).
	Port uint16 `mapstructure:"port"`

	// AcceptRate limits accepted connections per second.
	// 0 disables rate limiting.
	AcceptRate uint `mapstructure:"accept_rate"`

	// AcceptBurst is the rate limiter burst size.
	// Only used when AcceptRate is non-zero.
	AcceptBurst uint `mapstructure:"accept_burst"`
}

// IntakeConfig controls staging and admission of incoming transfers.
type IntakeConfig struct {
	// TmpDir stages temporary files before the atomic rename.
	// Must be unique per receiver process sharing a filesystem.
	TmpDir string `mapstructure:"tmp_dir" validate:"required"`

	// AllowedOrigins lists IP addresses or CIDR ranges allowed to connect.
	// Empty list means all origins are allowed.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// JournalConfig configures the receive journal.
type JournalConfig struct {
	// Enabled turns journaling of completed transfers on.
	Enabled bool `mapstructure:"enabled"`

	// Path is the journal database directory.
	// Required when Enabled is true.
	Path string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// ArchiveConfig configures the object storage sink.
//
// The S3 map carries sink-specific options and is decoded by the
// archiver factory; only the keys it defines are used.
type ArchiveConfig struct {
	// Enabled turns archiving of completed transfers on.
	Enabled bool `mapstructure:"enabled"`

	// S3 contains S3-specific configuration
	// Only used when Enabled is true
	S3 map[string]any `mapstructure:"s3"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PUFFER_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use PUFFER_ prefix and underscores
	// Example: PUFFER_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("PUFFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/puffer/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is acceptable - defaults apply.
		// Viper reports the search-path case and the explicit-path case
		// with different error types.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "puffer")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "puffer")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
