package fetch

import (
	"errors"
	"fmt"
)

// FetchErrorKind tells why a download failed
type FetchErrorKind string

const (
	// FetchErrorNetwork is for transport failures and non-2xx responses
	FetchErrorNetwork FetchErrorKind = "network"
	// FetchErrorIO is for local write or rename failures
	FetchErrorIO FetchErrorKind = "io"
	// FetchErrorEmpty is for responses with no body bytes
	FetchErrorEmpty FetchErrorKind = "empty"
)

// FetchError is an error returned when a model cannot be downloaded
type FetchError struct {
	kind FetchErrorKind
	name string
	url  string
	err  error
}

// NewFetchError creates a new FetchError
func NewFetchError(kind FetchErrorKind, name string, url string, err error) error {
	return &FetchError{
		kind: kind,
		name: name,
		url:  url,
		err:  err,
	}
}

// Error returns error message
func (err *FetchError) Error() string {
	if err.err == nil {
		return fmt.Sprintf("failed to fetch model %s from %s (%s)", err.name, err.url, err.kind)
	}
	return fmt.Sprintf("failed to fetch model %s from %s (%s): %v", err.name, err.url, err.kind, err.err)
}

// Unwrap returns the cause
func (err *FetchError) Unwrap() error {
	return err.err
}

// Is tests type of error
func (err *FetchError) Is(other error) bool {
	_, ok := other.(*FetchError)
	return ok
}

// GetKind returns the kind of failure
func (err *FetchError) GetKind() FetchErrorKind {
	return err.kind
}

// GetName returns the model name
func (err *FetchError) GetName() string {
	return err.name
}

// GetURL returns the URL downloaded from
func (err *FetchError) GetURL() string {
	return err.url
}

// IsFetchError evaluates if the given error is FetchError
func IsFetchError(err error) bool {
	return errors.Is(err, &FetchError{})
}

// IsFetchErrorKind evaluates if the given error is FetchError of the kind given
func IsFetchErrorKind(err error, kind FetchErrorKind) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.kind == kind
	}
	return false
}
