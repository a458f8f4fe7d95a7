package config

import (
	"errors"
	"fmt"
)

// ConfigError is an error returned when the asset document is missing or malformed
type ConfigError struct {
	path string
	err  error
}

// NewConfigError creates a new ConfigError
func NewConfigError(path string, err error) error {
	return &ConfigError{
		path: path,
		err:  err,
	}
}

// Error returns error message
func (err *ConfigError) Error() string {
	return fmt.Sprintf("config error for %s: %v", err.path, err.err)
}

// Unwrap returns the cause
func (err *ConfigError) Unwrap() error {
	return err.err
}

// Is tests type of error
func (err *ConfigError) Is(other error) bool {
	_, ok := other.(*ConfigError)
	return ok
}

// GetPath returns the path of the document
func (err *ConfigError) GetPath() string {
	return err.path
}

// IsConfigError evaluates if the given error is ConfigError
func IsConfigError(err error) bool {
	return errors.Is(err, &ConfigError{})
}
