package logging

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different categories of errors for classification
type ErrorCategory string

const (
	// Network-related errors
	ErrorCategoryNetwork ErrorCategory = "network"
	// Authentication/session errors
	ErrorCategorySecurity ErrorCategory = "security"
	// Credential and device storage errors
	ErrorCategoryStorage ErrorCategory = "storage"
	// Configuration errors
	ErrorCategoryConfig ErrorCategory = "config"
	// Unknown/Uncategorized errors
	ErrorCategoryUnknown ErrorCategory = "unknown"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	ErrorSeverityHigh   ErrorSeverity = "high"
	ErrorSeverityMedium ErrorSeverity = "medium"
	ErrorSeverityLow    ErrorSeverity = "low"
)

// ErrorContext provides additional context for error logging
type ErrorContext struct {
	Category    ErrorCategory
	Severity    ErrorSeverity
	Component   string
	Operation   string
	Recoverable bool
	Metadata    map[string]interface{}
}

// StructuredError represents a structured error with context
type StructuredError struct {
	Err       error
	Context   ErrorContext
	Timestamp time.Time
}

// Error implements the error interface
func (se *StructuredError) Error() string {
	if se.Err != nil {
		return se.Err.Error()
	}
	return "unknown error"
}

// Unwrap returns the underlying error
func (se *StructuredError) Unwrap() error {
	return se.Err
}

// NewStructuredError creates a new structured error with context
func NewStructuredError(err error, context ErrorContext) *StructuredError {
	return &StructuredError{
		Err:       err,
		Context:   context,
		Timestamp: time.Now(),
	}
}

// LogStructuredError logs a structured error at a level matching its severity
func LogStructuredError(logger logrus.FieldLogger, structuredErr *StructuredError) {
	if logger == nil || structuredErr == nil {
		return
	}

	category := structuredErr.Context.Category
	if category == "" {
		category = ClassifyError(structuredErr.Err)
	}

	entry := logger.WithFields(logrus.Fields{
		"error_category": category,
		"error_severity": structuredErr.Context.Severity,
		"component":      structuredErr.Context.Component,
		"operation":      structuredErr.Context.Operation,
		"recoverable":    structuredErr.Context.Recoverable,
	})
	for key, value := range structuredErr.Context.Metadata {
		entry = entry.WithField(key, value)
	}

	switch structuredErr.Context.Severity {
	case ErrorSeverityHigh:
		entry.Error(structuredErr.Error())
	case ErrorSeverityMedium, ErrorSeverityLow:
		entry.Warn(structuredErr.Error())
	default:
		entry.Error(structuredErr.Error())
	}
}

// LogNetworkError logs network-related errors
func LogNetworkError(logger logrus.FieldLogger, err error, operation string) {
	LogStructuredError(logger, NewStructuredError(err, ErrorContext{
		Category:    ErrorCategoryNetwork,
		Severity:    ErrorSeverityMedium,
		Component:   "client",
		Operation:   operation,
		Recoverable: true,
	}))
}

// LogSecurityError logs session and credential failures
func LogSecurityError(logger logrus.FieldLogger, err error, operation string, metadata map[string]interface{}) {
	LogStructuredError(logger, NewStructuredError(err, ErrorContext{
		Category:    ErrorCategorySecurity,
		Severity:    ErrorSeverityHigh,
		Component:   "auth",
		Operation:   operation,
		Recoverable: false,
		Metadata:    metadata,
	}))
}

// LogStorageError logs credential/device storage errors
func LogStorageError(logger logrus.FieldLogger, err error, operation string) {
	LogStructuredError(logger, NewStructuredError(err, ErrorContext{
		Category:    ErrorCategoryStorage,
		Severity:    ErrorSeverityHigh,
		Component:   "storage",
		Operation:   operation,
		Recoverable: true,
	}))
}

// LogOperationError logs a failure whose category is not known up front; the
// category is derived from the error itself.
func LogOperationError(logger logrus.FieldLogger, err error, component, operation string) {
	LogStructuredError(logger, NewStructuredError(err, ErrorContext{
		Severity:    ErrorSeverityMedium,
		Component:   component,
		Operation:   operation,
		Recoverable: true,
	}))
}

// ClassifyError attempts to classify an error based on its type and message
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorCategoryNetwork
	}

	errMsg := strings.ToLower(err.Error())
	keywords := []struct {
		category ErrorCategory
		words    []string
	}{
		{ErrorCategoryNetwork, []string{"connection refused", "connection reset", "no such host", "i/o timeout", "dial tcp", "tls handshake"}},
		{ErrorCategorySecurity, []string{"unauthorized", "forbidden", "refresh token", "invalid token", "expired"}},
		{ErrorCategoryStorage, []string{"sqlite", "redis", "database", "storage"}},
		{ErrorCategoryConfig, []string{"config", "configuration"}},
	}
	for _, group := range keywords {
		for _, word := range group.words {
			if strings.Contains(errMsg, word) {
				return group.category
			}
		}
	}

	return ErrorCategoryUnknown
}
