// Package config provides configuration management for the incident detector.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single validation error with user-friendly message.
type ValidationError struct {
	Field   string      // Field path (e.g., "telemetry.victoriametrics.endpoint")
	Tag     string      // Validation tag that failed (e.g., "required", "url")
	Value   interface{} // Actual value that failed validation
	Message string      // User-friendly error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
	}
	return sb.String()
}

// validate is the package-level validator instance.
var validate *validator.Validate

// init initializes the validator with custom validations.
func init() {
	validate = validator.New()

	// Register custom validation for timezone
	validate.RegisterValidation("timezone", validateTimezone)
}

// Validate validates the configuration and returns user-friendly error messages.
func Validate(cfg *Config) error {
	var validationErrors ValidationErrors

	// Run struct validation
	if err := validate.Struct(cfg); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrors {
				validationErrors = append(validationErrors, &ValidationError{
					Field:   formatFieldName(fe.Namespace()),
					Tag:     fe.Tag(),
					Value:   fe.Value(),
					Message: translateError(fe),
				})
			}
		}
	}

	// Run custom business logic validations
	if errs := validateTelemetry(cfg); len(errs) > 0 {
		validationErrors = append(validationErrors, errs...)
	}

	if errs := validateCooldownStore(cfg); len(errs) > 0 {
		validationErrors = append(validationErrors, errs...)
	}

	if errs := validatePlaybookEndpoint(cfg); len(errs) > 0 {
		validationErrors = append(validationErrors, errs...)
	}

	if errs := validateTimezoneConfig(cfg); len(errs) > 0 {
		validationErrors = append(validationErrors, errs...)
	}

	if len(validationErrors) > 0 {
		return validationErrors
	}

	return nil
}

// validateTimezone is a custom validator for timezone strings.
func validateTimezone(fl validator.FieldLevel) bool {
	tz := fl.Field().String()
	if tz == "" {
		return true // Empty is allowed, will use default
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// validateTelemetry requires an endpoint when VictoriaMetrics is the metric source.
func validateTelemetry(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	if cfg.Telemetry.Source == "victoriametrics" && cfg.Telemetry.VictoriaMetrics.Endpoint == "" {
		errors = append(errors, &ValidationError{
			Field:   "telemetry.victoriametrics.endpoint",
			Tag:     "required_when_selected",
			Value:   "",
			Message: "endpoint is required when telemetry.source is victoriametrics",
		})
	}

	if cfg.Telemetry.Period > cfg.Telemetry.Window {
		errors = append(errors, &ValidationError{
			Field:   "telemetry.period",
			Tag:     "period_window",
			Value:   fmt.Sprintf("period=%s, window=%s", cfg.Telemetry.Period, cfg.Telemetry.Window),
			Message: fmt.Sprintf("period (%s) must not exceed window (%s)", cfg.Telemetry.Period, cfg.Telemetry.Window),
		})
	}

	return errors
}

// validateCooldownStore checks the scheme of the dedup backing-store identifier.
func validateCooldownStore(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	if cfg.Cooldown.Store == "" {
		return errors
	}

	scheme, rest, ok := strings.Cut(cfg.Cooldown.Store, "://")
	switch {
	case !ok:
		errors = append(errors, &ValidationError{
			Field:   "cooldown.store",
			Tag:     "store_url",
			Value:   cfg.Cooldown.Store,
			Message: fmt.Sprintf("invalid store identifier %q, expected <scheme>://...", cfg.Cooldown.Store),
		})
	case scheme == "dynamodb" && rest == "":
		errors = append(errors, &ValidationError{
			Field:   "cooldown.store",
			Tag:     "store_url",
			Value:   cfg.Cooldown.Store,
			Message: "dynamodb store requires a table name (dynamodb://<table>)",
		})
	case scheme != "dynamodb" && scheme != "redis" && scheme != "rediss" &&
		scheme != "postgres" && scheme != "postgresql" && scheme != "memory":
		errors = append(errors, &ValidationError{
			Field:   "cooldown.store",
			Tag:     "store_url",
			Value:   cfg.Cooldown.Store,
			Message: fmt.Sprintf("unsupported store scheme %q, supported: dynamodb, redis, postgres, memory", scheme),
		})
	}

	return errors
}

// validatePlaybookEndpoint checks that the playbook endpoint is a state machine ARN or a NATS subject URL.
func validatePlaybookEndpoint(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	endpoint := cfg.Playbook.Endpoint
	if endpoint == "" {
		return errors
	}

	if strings.HasPrefix(endpoint, "arn:aws:states:") {
		return errors
	}
	if u, err := url.Parse(endpoint); err == nil && (u.Scheme == "nats" || u.Scheme == "tls") {
		// Same subject rules as the NATS publisher.
		subject := strings.Trim(u.Path, "/")
		if subject != "" && !strings.ContainsAny(subject, " /") {
			return errors
		}
		errors = append(errors, &ValidationError{
			Field:   "playbook.endpoint",
			Tag:     "playbook_endpoint",
			Value:   endpoint,
			Message: "nats playbook endpoint requires a single subject (nats://host:port/<subject>)",
		})
		return errors
	}

	errors = append(errors, &ValidationError{
		Field:   "playbook.endpoint",
		Tag:     "playbook_endpoint",
		Value:   endpoint,
		Message: fmt.Sprintf("unsupported playbook endpoint %q, expected a Step Functions ARN or nats:// URL", endpoint),
	})
	return errors
}

// validateTimezoneConfig validates the timezone configuration.
func validateTimezoneConfig(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	if cfg.Report.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Report.Timezone); err != nil {
			errors = append(errors, &ValidationError{
				Field:   "report.timezone",
				Tag:     "timezone",
				Value:   cfg.Report.Timezone,
				Message: fmt.Sprintf("invalid timezone: %s", cfg.Report.Timezone),
			})
		}
	}

	return errors
}

// formatFieldName converts the validator field namespace to a user-friendly format.
// Example: "Config.Telemetry.VictoriaMetrics.Endpoint" -> "telemetry.victoriametrics.endpoint"
func formatFieldName(namespace string) string {
	// Remove the root struct name (e.g., "Config.")
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:] // Remove "Config"
	}

	// Convert to lowercase and join
	for i, part := range parts {
		parts[i] = strings.ToLower(part)
	}

	return strings.Join(parts, ".")
}

// translateError converts a validator.FieldError to a user-friendly message.
func translateError(fe validator.FieldError) string {
	field := formatFieldName(fe.Namespace())

	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "url":
		return fmt.Sprintf("invalid URL format: %v", fe.Value())
	case "gt":
		return fmt.Sprintf("value must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("value must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("value must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("value must be one of: %s", fe.Param())
	case "dive":
		return fmt.Sprintf("invalid value in list: %v", fe.Value())
	case "timezone":
		return fmt.Sprintf("invalid timezone: %v", fe.Value())
	default:
		return fmt.Sprintf("validation failed on '%s' tag for field '%s'", fe.Tag(), field)
	}
}
