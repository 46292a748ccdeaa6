package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrNoRefreshToken is returned when a refresh is attempted with no refresh
// token on file.
var ErrNoRefreshToken = errors.New("no refresh token available")

// APIError is a non-2xx answer from the remote API
type APIError struct {
	Op         string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: HTTP error %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP error %d: %s", e.Op, e.StatusCode, body)
}

// RefreshFailedError means the refresh endpoint itself rejected or errored.
type RefreshFailedError struct {
	Err error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshFailedError) Unwrap() error {
	return e.Err
}

// TransientError wraps network and timeout failures. This layer never retries
// them; callers decide.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying failure was a timeout
func (e *TransientError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsUnauthorized reports whether err carries an HTTP 401
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsTransient reports whether err is a network level failure
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// ClassifyTransport wraps an error returned by http.Client.Do. Cancellation
// by the caller is returned unchanged.
func ClassifyTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}
