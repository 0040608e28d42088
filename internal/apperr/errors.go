// Package apperr defines the error taxonomy shared by the collection core.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrRemoteCallFailed covers transport failures and non-success response bodies.
	ErrRemoteCallFailed = errors.New("remote call failed")

	// Export failures.
	ErrFetchFailed = errors.New("export: fetch failed")
	ErrWriteFailed = errors.New("export: write failed")

	// ErrDetached is returned when an outcome arrives after its view was unmounted.
	ErrDetached = errors.New("view detached")
)

// RemoteError carries the message reported by the remote API.
type RemoteError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

// Is makes every RemoteError match ErrRemoteCallFailed.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteCallFailed
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Invalid wraps ErrInvalidInput with a human readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// UserMessage returns the text shown in a transient notice for err.
func UserMessage(err error) string {
	var re *RemoteError
	switch {
	case errors.Is(err, ErrFetchFailed), errors.Is(err, ErrWriteFailed):
		return "Failed to download image."
	case errors.As(err, &re) && re.Message != "":
		return re.Message
	default:
		return err.Error()
	}
}
