package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// NetworkError is a transport failure (timeout, connection loss). It is
// transient: the caller may retry the identical request.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response. It is not retried automatically.
type ServerError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server error (%d %s)", e.Op, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: server error (%d): %s", e.Op, e.Status, e.Body)
}

// ParseError is a malformed payload. It is handled like a ServerError:
// errors.As(err, &serverErr) matches it.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// As lets a ParseError satisfy errors.As with a *ServerError target.
func (e *ParseError) As(target any) bool {
	se, ok := target.(**ServerError)
	if !ok {
		return false
	}
	*se = &ServerError{Op: e.Op, Status: http.StatusOK, Body: e.Err.Error()}
	return true
}

// IsTransient returns true for errors that an explicit retry may resolve.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsServerError returns true for non-2xx responses and malformed payloads.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}
