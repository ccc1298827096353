package core

// errors.go defines the error taxonomy shared by the engines.
//
//   - ParseError: the file cannot be decoded in its declared format (fatal)
//   - PreconditionError: credential, file or organization id missing (fatal)
//   - ImportError: one row failed (isolated, see types.go)
//   - RemoteError: the API answered with a non-2xx status
//   - TransportError: no response was obtained; folded into ImportError

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrNoMatches is returned by an export whose tag selection matched nothing.
var ErrNoMatches = errors.New("no contacts match the selected tags")

// ErrJobNotFound is returned when a job id is unknown or already cleaned up.
var ErrJobNotFound = errors.New("job not found")

// ErrNoErrors is returned when an error report is requested for a clean run.
var ErrNoErrors = errors.New("import has no errors to report")

// ParseError reports a file that cannot be decoded in its declared format.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s file: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PreconditionError reports a missing input that prevents the whole run.
type PreconditionError struct {
	Field  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s %s", e.Field, e.Reason)
}

// RemoteError is a non-2xx answer from the remote API.
type RemoteError struct {
	HTTPStatus int
	Status     string
	Message    string
	Code       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote api: %s %s (%s)", e.Status, e.Message, e.Code)
}

// FallbackRemoteError builds the error used when the body is not the
// structured {status, msg, errorCode} shape.
func FallbackRemoteError(httpStatus int) *RemoteError {
	return &RemoteError{
		HTTPStatus: httpStatus,
		Status:     strconv.Itoa(httpStatus),
		Message:    http.StatusText(httpStatus),
		Code:       CodeNotAvailable,
	}
}

// TransportError wraps a failure to obtain any response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsFatal reports whether err aborts a whole operation rather than a row.
func IsFatal(err error) bool {
	var pe *ParseError
	var ce *PreconditionError
	return errors.As(err, &pe) || errors.As(err, &ce)
}
