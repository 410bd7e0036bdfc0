package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags and cross-field references.
// Every returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, formatValidationErrors(err))
	}

	if err := c.validateProviderReferences(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if c.Embedding.Provider == "genai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("%w: embedding.api_key is required for the genai provider", ErrInvalid)
	}

	return nil
}

// validateProviderReferences ensures the default provider and every route
// target name a configured provider.
func (c *Config) validateProviderReferences() error {
	if _, ok := c.Upstream.Providers[c.Upstream.DefaultProvider]; !ok {
		return fmt.Errorf("upstream.default_provider: unknown provider %q", c.Upstream.DefaultProvider)
	}
	for i, r := range c.Upstream.Routes {
		if _, ok := c.Upstream.Providers[r.Provider]; !ok {
			return fmt.Errorf("upstream.routes[%d]: unknown provider %q", i, r.Provider)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to readable messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleValidationError(e))
	}
	return errors.New(strings.Join(messages, "; "))
}

func formatSingleValidationError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, e.Param(), e.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", field, e.Param(), e.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", field, e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL, got %q", field, e.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}
