// Package config - validation logic for configuration values
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s - %s", e.Field, e.Message)
}

var validate = newValidator()

// newValidator reports field paths by their yaml names so errors match the config file
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks all configuration values for validity
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Field:   fieldPath(fe.Namespace()),
				Message: describe(fe),
			})
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: "must be one of debug, info, warn, error",
		})
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: "must be console or json",
		})
	}

	if !c.Proxy.Bypass && c.Proxy.DefaultRegion == "" {
		errs = append(errs, ValidationError{
			Field:   "proxy.default_region",
			Message: "is required unless proxy.bypass is set",
		})
	}

	if c.API.Enabled && c.API.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "api.addr",
			Message: "is required when the api is enabled",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "gtfield":
		return "must be greater than " + fe.Param()
	case "gtefield":
		return "must be greater than or equal to " + fe.Param()
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
