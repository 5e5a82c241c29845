package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateMaxLength checks if a string doesn't exceed maximum length
func ValidateMaxLength(field, value string, maxLength int) error {
	if len(value) > maxLength {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must not exceed %d characters", maxLength),
		}
	}
	return nil
}

// ValidateURL checks that value is an absolute http(s) URL
func ValidateURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be an absolute http or https URL",
		}
	}
	return nil
}

// addIfErr appends err to ve when it is a ValidationError.
func (ve *ValidationErrors) addIfErr(err error) {
	if err == nil {
		return
	}
	if v, ok := err.(ValidationError); ok {
		*ve = append(*ve, v)
		return
	}
	ve.Add("", err.Error())
}

// Validate checks the aggregator settings and every backend definition.
// Backend name rules specific to namespacing are enforced by the aggregator.
func (c SwitchboardConfig) Validate() error {
	var errs ValidationErrors
	a := c.Aggregator

	errs.addIfErr(ValidateOneOf("aggregator.transport", a.Transport,
		[]string{MCPTransportStreamableHTTP, MCPTransportSSE, MCPTransportStdio}))
	errs.addIfErr(ValidateOneOf("aggregator.conflictPolicy", a.ConflictPolicy,
		[]string{ConflictPolicyPrefix, ConflictPolicyFirstWins, ConflictPolicyError}))
	errs.addIfErr(ValidateOneOf("aggregator.connectionMode", a.ConnectionMode,
		[]string{ConnectionModePersistent, ConnectionModeLazy}))
	errs.addIfErr(ValidateOneOf("aggregator.loadingMode", a.LoadingMode,
		[]string{LoadingModeParallel, LoadingModeSequential}))

	if a.Transport != MCPTransportStdio && (a.Port <= 0 || a.Port > 65535) {
		errs.Add("aggregator.port", "must be between 1 and 65535", a.Port)
	}
	if a.LoadTimeout < 0 {
		errs.Add("aggregator.loadTimeout", "must not be negative", a.LoadTimeout)
	}
	if a.PoolSize < 0 {
		errs.Add("aggregator.poolSize", "must not be negative", a.PoolSize)
	}

	seen := make(map[string]bool)
	for i, server := range c.Servers {
		prefix := fmt.Sprintf("servers[%d]", i)
		if server.Name != "" {
			prefix = fmt.Sprintf("servers[%s]", server.Name)
			if seen[server.Name] {
				errs.Add(prefix+".name", "is declared more than once", server.Name)
			}
			seen[server.Name] = true
		}
		for _, err := range server.Validate() {
			err.Field = prefix + "." + err.Field
			errs = append(errs, err)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Validate checks a single backend definition.
func (b BackendConfig) Validate() ValidationErrors {
	var errs ValidationErrors

	errs.addIfErr(ValidateRequired("name", b.Name, "backend"))
	errs.addIfErr(ValidateMaxLength("name", b.Name, MaxBackendNameLength))
	if strings.ContainsAny(b.Name, " \t\n") {
		errs.Add("name", "cannot contain whitespace", b.Name)
	}

	switch b.Type {
	case BackendTypeStdio:
		errs.addIfErr(ValidateRequired("command", b.Command, "stdio backend"))
	case BackendTypeSSE, BackendTypeStreamableHTTP:
		if err := ValidateRequired("url", b.URL, string(b.Type)+" backend"); err != nil {
			errs.addIfErr(err)
		} else {
			errs.addIfErr(ValidateURL("url", b.URL))
		}
		if b.OAuth != nil {
			errs.addIfErr(ValidateRequired("oauth.tokenUrl", b.OAuth.TokenURL, "oauth credentials"))
			errs.addIfErr(ValidateRequired("oauth.clientId", b.OAuth.ClientID, "oauth credentials"))
		}
	default:
		errs.addIfErr(ValidateOneOf("type", string(b.Type),
			[]string{string(BackendTypeStdio), string(BackendTypeSSE), string(BackendTypeStreamableHTTP)}))
	}

	if b.Timeout < 0 {
		errs.Add("timeout", "must not be negative", b.Timeout)
	}

	return errs
}
