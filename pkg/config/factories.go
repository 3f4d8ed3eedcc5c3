package config

import (
	"context"
	"fmt"
	"os"

	"github.com/fakegit/puffer/internal/logger"
	"github.com/fakegit/puffer/pkg/archive"
	"github.com/fakegit/puffer/pkg/journal"
	"github.com/mitchellh/mapstructure"
)

// ConfigureLogging applies the logging configuration to the process-wide
// logger.
//
// Output "stdout" and "stderr" select the corresponding standard stream;
// any other value is treated as a file path opened in append mode.
//
// Returns an error if the log file cannot be opened. Level and format
// have already been validated, so unknown values cannot reach here.
func ConfigureLogging(cfg *LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)

	switch cfg.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		logger.SetOutput(file)
	}

	return nil
}

// CreateJournal creates the receive journal if journaling is enabled.
//
// Returns (nil, nil) when journaling is disabled; callers treat a nil
// journal as "do not record".
func CreateJournal(cfg *JournalConfig) (*journal.Journal, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	j, err := journal.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %q: %w", cfg.Path, err)
	}

	return j, nil
}

// CreateArchiver creates the object storage sink if archiving is enabled.
//
// The S3 options map is decoded into the archiver's configuration; only
// the keys defined there are used.
//
// Returns (nil, nil) when archiving is disabled; callers treat a nil
// archiver as "do not archive".
func CreateArchiver(ctx context.Context, cfg *ArchiveConfig) (*archive.Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	type s3SinkConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
	}

	var sinkCfg s3SinkConfig
	if err := mapstructure.Decode(cfg.S3, &sinkCfg); err != nil {
		return nil, fmt.Errorf("failed to decode archive S3 config: %w", err)
	}

	if sinkCfg.Bucket == "" {
		return nil, fmt.Errorf("archive S3 sink: bucket is required")
	}
	if sinkCfg.Region == "" {
		return nil, fmt.Errorf("archive S3 sink: region is required")
	}

	archiver, err := archive.New(ctx, archive.Config{
		Region:          sinkCfg.Region,
		Bucket:          sinkCfg.Bucket,
		KeyPrefix:       sinkCfg.KeyPrefix,
		Endpoint:        sinkCfg.Endpoint,
		AccessKeyID:     sinkCfg.AccessKeyID,
		SecretAccessKey: sinkCfg.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive S3 sink: %w", err)
	}

	return archiver, nil
}
