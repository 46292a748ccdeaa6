package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Op: "login", StatusCode: http.StatusForbidden, Body: []byte(" {\"error\":\"nope\"} ")}
	assert.Equal(t, `login: HTTP error 403: {"error":"nope"}`, err.Error())

	empty := &APIError{Op: "guest", StatusCode: http.StatusBadGateway}
	assert.Equal(t, "guest: HTTP error 502", empty.Error())

	long := &APIError{Op: "x", StatusCode: 500, Body: []byte(strings.Repeat("a", 1000))}
	assert.True(t, strings.HasSuffix(long.Error(), "..."))
}

func TestClassifyTransport(t *testing.T) {
	assert.Nil(t, ClassifyTransport("op", nil))

	cancelled := fmt.Errorf("Post: %w", context.Canceled)
	assert.Equal(t, cancelled, ClassifyTransport("op", cancelled))

	timeout := ClassifyTransport("op", fmt.Errorf("Post: %w", context.DeadlineExceeded))
	var transient *TransientError
	assert.True(t, errors.As(timeout, &transient))
	assert.True(t, transient.Timeout())
	assert.True(t, IsTransient(timeout))

	refused := ClassifyTransport("op", errors.New("connection refused"))
	assert.True(t, errors.As(refused, &transient))
	assert.False(t, transient.Timeout())
}

func TestRefreshFailedErrorUnwraps(t *testing.T) {
	inner := &APIError{Op: "refresh", StatusCode: http.StatusUnauthorized}
	err := &RefreshFailedError{Err: inner}

	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "token refresh failed")
}
