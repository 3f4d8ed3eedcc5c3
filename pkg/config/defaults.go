package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultPort is the listening port used when none is configured.
const DefaultPort = 9333

// GetDefaultConfig returns a fully populated configuration with all
// default values applied. Useful for tests and config file generation.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyIntakeDefaults(&cfg.Intake)
	applyArchiveDefaults(&cfg.Archive)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.AcceptRate != 0 && cfg.AcceptBurst == 0 {
		cfg.AcceptBurst = cfg.AcceptRate
	}
}

// applyIntakeDefaults sets intake defaults.
func applyIntakeDefaults(cfg *IntakeConfig) {
	if cfg.TmpDir == "" {
		cfg.TmpDir = filepath.Join(os.TempDir(), "puffer-intake")
	}
}

// applyArchiveDefaults sets archive sink defaults.
func applyArchiveDefaults(cfg *ArchiveConfig) {
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}
