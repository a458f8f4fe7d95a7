package manager

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when the manager is shut down
	ErrClosed = errors.New("model manager is closed")
	// ErrLeaseReturned is returned when a lease is returned twice
	ErrLeaseReturned = errors.New("lease is already returned")
)

// AcquireErrorKind tells which step of an acquisition failed
type AcquireErrorKind string

const (
	// AcquireErrorUnresolved is for a model found neither locally nor in the asset document
	AcquireErrorUnresolved AcquireErrorKind = "unresolved"
	// AcquireErrorFetchFailed is for a model that could not be downloaded
	AcquireErrorFetchFailed AcquireErrorKind = "fetchFailed"
	// AcquireErrorOpenFailed is for a model file that could not be materialized
	AcquireErrorOpenFailed AcquireErrorKind = "openFailed"
)

// AcquireError is an error returned when a model cannot be acquired
type AcquireError struct {
	kind AcquireErrorKind
	name string
	err  error
}

// NewAcquireError creates a new AcquireError
func NewAcquireError(kind AcquireErrorKind, name string, err error) error {
	return &AcquireError{
		kind: kind,
		name: name,
		err:  err,
	}
}

// Error returns error message
func (err *AcquireError) Error() string {
	if err.err == nil {
		return fmt.Sprintf("failed to acquire model %s (%s)", err.name, err.kind)
	}
	return fmt.Sprintf("failed to acquire model %s (%s): %v", err.name, err.kind, err.err)
}

// Unwrap returns the cause, e.g., FetchError or OpenError
func (err *AcquireError) Unwrap() error {
	return err.err
}

// Is tests type of error
func (err *AcquireError) Is(other error) bool {
	_, ok := other.(*AcquireError)
	return ok
}

// GetKind returns the kind of failure
func (err *AcquireError) GetKind() AcquireErrorKind {
	return err.kind
}

// GetName returns the model name
func (err *AcquireError) GetName() string {
	return err.name
}

// IsAcquireError evaluates if the given error is AcquireError
func IsAcquireError(err error) bool {
	return errors.Is(err, &AcquireError{})
}

// IsUnresolvedError evaluates if the given error is AcquireError for an unknown model
func IsUnresolvedError(err error) bool {
	return isAcquireErrorKind(err, AcquireErrorUnresolved)
}

// IsFetchFailedError evaluates if the given error is AcquireError for a failed download
func IsFetchFailedError(err error) bool {
	return isAcquireErrorKind(err, AcquireErrorFetchFailed)
}

// IsOpenFailedError evaluates if the given error is AcquireError for a failed materialization
func IsOpenFailedError(err error) bool {
	return isAcquireErrorKind(err, AcquireErrorOpenFailed)
}

func isAcquireErrorKind(err error, kind AcquireErrorKind) bool {
	var acquireErr *AcquireError
	if errors.As(err, &acquireErr) {
		return acquireErr.kind == kind
	}
	return false
}

// CapacityError is an error returned when capacity is set below 1
type CapacityError struct {
	capacity int
}

// NewCapacityError creates a new CapacityError
func NewCapacityError(capacity int) error {
	return &CapacityError{
		capacity: capacity,
	}
}

// Error returns error message
func (err *CapacityError) Error() string {
	return fmt.Sprintf("invalid capacity %d, must be at least 1", err.capacity)
}

// Is tests type of error
func (err *CapacityError) Is(other error) bool {
	_, ok := other.(*CapacityError)
	return ok
}

// GetCapacity returns the rejected capacity
func (err *CapacityError) GetCapacity() int {
	return err.capacity
}

// IsCapacityError evaluates if the given error is CapacityError
func IsCapacityError(err error) bool {
	return errors.Is(err, &CapacityError{})
}
