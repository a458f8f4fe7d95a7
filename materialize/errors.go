package materialize

import (
	"errors"
	"fmt"
)

// OpenErrorKind tells why a model file cannot be materialized
type OpenErrorKind string

const (
	// OpenErrorMissing is for a model file that does not exist or cannot be read
	OpenErrorMissing OpenErrorKind = "missing"
	// OpenErrorCorrupt is for a model file whose bytes are unusable
	OpenErrorCorrupt OpenErrorKind = "corrupt"
)

// OpenError is an error returned when a model file cannot be materialized
type OpenError struct {
	kind OpenErrorKind
	path string
	err  error
}

// NewOpenError creates a new OpenError
func NewOpenError(kind OpenErrorKind, path string, err error) error {
	return &OpenError{
		kind: kind,
		path: path,
		err:  err,
	}
}

// Error returns error message
func (err *OpenError) Error() string {
	if err.err == nil {
		return fmt.Sprintf("failed to open model file %s (%s)", err.path, err.kind)
	}
	return fmt.Sprintf("failed to open model file %s (%s): %v", err.path, err.kind, err.err)
}

// Unwrap returns the cause
func (err *OpenError) Unwrap() error {
	return err.err
}

// Is tests type of error
func (err *OpenError) Is(other error) bool {
	_, ok := other.(*OpenError)
	return ok
}

// GetKind returns the kind of failure
func (err *OpenError) GetKind() OpenErrorKind {
	return err.kind
}

// GetPath returns the model file path
func (err *OpenError) GetPath() string {
	return err.path
}

// IsOpenError evaluates if the given error is OpenError
func IsOpenError(err error) bool {
	return errors.Is(err, &OpenError{})
}

// IsOpenErrorKind evaluates if the given error is OpenError of the kind given
func IsOpenErrorKind(err error, kind OpenErrorKind) bool {
	var openErr *OpenError
	if errors.As(err, &openErr) {
		return openErr.kind == kind
	}
	return false
}
