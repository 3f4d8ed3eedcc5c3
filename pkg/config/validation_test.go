package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_LowercaseLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected lowercase log level to be accepted, got error: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_MissingTmpDir(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Intake.TmpDir = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing tmp dir")
	}
}

func TestValidate_InvalidAllowedOrigin(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Intake.AllowedOrigins = []string{"not-an-ip"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid allowed origin")
	}
	if !strings.Contains(err.Error(), "allowed_origins") {
		t.Errorf("Expected 'allowed_origins' in error, got: %v", err)
	}
}

func TestValidate_ValidAllowedOrigins(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Intake.AllowedOrigins = []string{"10.0.0.5", "192.168.0.0/24"}

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected IP and CIDR origins to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidCIDROrigin(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Intake.AllowedOrigins = []string{"10.0.0.0/99"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid CIDR origin")
	}
}

func TestValidate_JournalEnabledWithoutPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Path = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for enabled journal without path")
	}
}

func TestValidate_JournalEnabledWithPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Path = "/var/lib/puffer/journal"

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected enabled journal with path to pass validation, got error: %v", err)
	}
}

func TestValidate_ArchiveEnabledWithoutBucket(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Archive.Enabled = true
	cfg.Archive.S3 = map[string]any{"region": "us-east-1"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for enabled archive without bucket")
	}
	if !strings.Contains(err.Error(), "bucket") {
		t.Errorf("Expected 'bucket' in error, got: %v", err)
	}
}

func TestValidate_ArchiveEnabledWithoutRegion(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Archive.Enabled = true
	cfg.Archive.S3 = map[string]any{"bucket": "transfers"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for enabled archive without region")
	}
}

func TestValidate_ArchiveEnabledComplete(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Archive.Enabled = true
	cfg.Archive.S3 = map[string]any{
		"bucket": "transfers",
		"region": "us-east-1",
	}

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected complete archive config to pass validation, got error: %v", err)
	}
}
