package domain

import "errors"

var (
	// ErrNotFound covers both missing rows and rows owned by someone else.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when an activity was already resolved the other way.
	ErrConflict = errors.New("conflicting merge state")
	// ErrUpstream marks failures of the persistence layer.
	ErrUpstream = errors.New("upstream failure")
)

// Upstream tags err so that errors.Is(err, ErrUpstream) holds while the
// original chain stays inspectable.
func Upstream(err error) error {
	if err == nil || errors.Is(err, ErrUpstream) {
		return err
	}
	return &upstreamError{err: err}
}

type upstreamError struct {
	err error
}

func (e *upstreamError) Error() string { return e.err.Error() }

func (e *upstreamError) Unwrap() []error { return []error{e.err, ErrUpstream} }
