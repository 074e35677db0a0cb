package executor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPreventUpdate is returned by a callback function to abort with no side
// effects. It is a successful outcome, not an error.
var ErrPreventUpdate = errors.New("prevent update")

// ErrFutureUnsupported rejects callback functions that return a Future.
var ErrFutureUnsupported = errors.New("the callback function returned a Future; asynchronous callback functions are not supported")

// IsPreventUpdate reports whether err is or wraps ErrPreventUpdate.
func IsPreventUpdate(err error) bool {
	return errors.Is(err, ErrPreventUpdate)
}

// ReferenceError reports a binding that resolved to no component, or to
// several where exactly one was expected. It signals a structural problem in
// the declared graph and is the one error that stops the scheduler.
type ReferenceError struct {
	Messages []string
}

func (e *ReferenceError) Error() string {
	return strings.Join(e.Messages, "\n")
}

// IsReferenceError reports whether err is or wraps a *ReferenceError.
func IsReferenceError(err error) bool {
	var re *ReferenceError
	return errors.As(err, &re)
}

// HTTPError is a non-2xx answer from the callback server.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("callback server returned status %d", e.Status)
	}
	return fmt.Sprintf("callback server returned status %d: %s", e.Status, e.Body)
}

// NetworkError is a transport failure reaching the callback server.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("callback request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
