package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Validate origin allow-list entries parse as IPs or CIDR ranges
	for i, entry := range cfg.Intake.AllowedOrigins {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("intake.allowed_origins[%d]: invalid CIDR range %q", i, entry)
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("intake.allowed_origins[%d]: invalid IP address %q", i, entry)
		}
	}

	// Validate the archive sink has the keys its factory requires
	if cfg.Archive.Enabled {
		if bucket, _ := cfg.Archive.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("archive.s3: bucket is required when archive is enabled")
		}
		if region, _ := cfg.Archive.S3["region"].(string); region == "" {
			return fmt.Errorf("archive.s3: region is required when archive is enabled")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
