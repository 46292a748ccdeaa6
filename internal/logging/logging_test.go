package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"INFO", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"bogus", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			logger := Initialize(tt.input)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

func TestInitializeAddsServiceFields(t *testing.T) {
	logger := Initialize("info")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ferry-booking-client", line["service"])
	assert.Equal(t, "hello", line["message"])
	assert.Contains(t, line, "timestamp")
}

func TestLogSecurityError(t *testing.T) {
	logger := logrus.New()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	LogSecurityError(logger, errors.New("refresh rejected"), "refresh", map[string]interface{}{"status": 401})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "security", line["error_category"])
	assert.Equal(t, "refresh", line["operation"])
	assert.EqualValues(t, 401, line["status"])
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err      error
		expected ErrorCategory
	}{
		{nil, ErrorCategoryUnknown},
		{errors.New("dial tcp 127.0.0.1:1: connection refused"), ErrorCategoryNetwork},
		{errors.New("no refresh token available"), ErrorCategorySecurity},
		{errors.New("sqlite: database is locked"), ErrorCategoryStorage},
		{errors.New("invalid configuration"), ErrorCategoryConfig},
		{errors.New("something else"), ErrorCategoryUnknown},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), ErrorCategoryNetwork},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyError(tt.err))
		})
	}
}

func TestLogOperationErrorClassifiesCategory(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{errors.New("dial tcp 127.0.0.1:1: connection refused"), "network"},
		{errors.New("sqlite: database is locked"), "storage"},
		{errors.New("HTTP error 401: unauthorized"), "security"},
		{errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			logger := logrus.New()
			var buf bytes.Buffer
			logger.SetOutput(&buf)
			logger.SetFormatter(&logrus.JSONFormatter{})

			LogOperationError(logger, tt.err, "session", "create_guest_session")

			var line map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, "warning", line["level"])
			assert.Equal(t, tt.expected, line["error_category"])
			assert.Equal(t, "session", line["component"])
		})
	}
}

func TestLogStructuredErrorKeepsExplicitCategory(t *testing.T) {
	logger := logrus.New()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	LogStorageError(logger, errors.New("dial tcp: connection refused"), "get_tokens")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "storage", line["error_category"])
}
