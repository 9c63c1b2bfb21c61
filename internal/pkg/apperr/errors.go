package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrRateLimited         = errors.New("rate limited")
	ErrAlreadyRunning      = errors.New("already running")
	ErrTimeout             = errors.New("timeout")
	ErrCollaboratorFailure = errors.New("collaborator failure")
	ErrInvalidInput        = errors.New("invalid input")
)

// Error attaches the failing operation to one of the sentinel kinds above.
// Err is either a sentinel or a wrapped chain containing one.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err tagged with op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// NotFound builds an ErrNotFound for the given entity kind and id.
func NotFound(op, kind, id string) error {
	return &Error{Op: op, Err: fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)}
}

func Invalid(op, msg string) error {
	return &Error{Op: op, Err: fmt.Errorf("%s: %w", msg, ErrInvalidInput)}
}

func Denied(op, msg string) error {
	return &Error{Op: op, Err: fmt.Errorf("%s: %w", msg, ErrPermissionDenied)}
}

// Collaborator marks err as a failure of an external service call.
func Collaborator(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) {
		return &Error{Op: op, Err: err}
	}
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrCollaboratorFailure, err)}
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
