package provider

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ValidateConfigFields checks conf against the provider's field definitions
func ValidateConfigFields(providerName string, conf map[string]string, fields []ConfigField) error {
	for _, field := range fields {
		value, exists := conf[field.Key]
		if !field.Required && strings.TrimSpace(value) == "" {
			continue
		}

		if !exists {
			return fmt.Errorf("%s: required field '%s' is missing", providerName, field.Key)
		}
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s: required field '%s' cannot be empty", providerName, field.Key)
		}

		if err := checkFieldType(field, value); err != nil {
			return fmt.Errorf("%s: field '%s' %w", providerName, field.Key, err)
		}

		if field.Pattern != "" {
			matched, err := regexp.MatchString(field.Pattern, value)
			if err != nil {
				return fmt.Errorf("%s: invalid pattern for field '%s': %v", providerName, field.Key, err)
			}
			if !matched {
				return fmt.Errorf("%s: field '%s' does not match required pattern", providerName, field.Key)
			}
		}

		if field.MinLength > 0 && len(value) < field.MinLength {
			return fmt.Errorf("%s: field '%s' must be at least %d characters", providerName, field.Key, field.MinLength)
		}
		if field.MaxLength > 0 && len(value) > field.MaxLength {
			return fmt.Errorf("%s: field '%s' must not exceed %d characters", providerName, field.Key, field.MaxLength)
		}
	}

	return nil
}

func checkFieldType(field ConfigField, value string) error {
	switch field.Type {
	case "number":
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("must be numeric")
		}
	case "url":
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("must be an absolute URL")
		}
	case "boolean":
		if value != "true" && value != "false" {
			return fmt.Errorf("must be 'true' or 'false'")
		}
	}
	return nil
}
