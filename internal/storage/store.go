// Package storage provides the key-value backends used for session tokens and
// the device identifier.
package storage

import (
	"context"
	"fmt"
)

// KV is a small key-value store. Implementations must make each call atomic
// with respect to concurrent callers.
type KV interface {
	// Get returns a snapshot of the requested keys. Missing keys are absent.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	// Set writes all values in one atomic step.
	Set(ctx context.Context, values map[string]string) error
	// SetIfAbsent stores value unless key exists and returns the stored value.
	SetIfAbsent(ctx context.Context, key, value string) (string, error)
	// Delete removes keys. Deleting a missing key is not an error.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Error wraps a backend failure with the operation and keys involved
type Error struct {
	Driver string
	Op     string
	Keys   []string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s %v: %v", e.Driver, e.Op, e.Keys, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(driver, op string, keys []string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Driver: driver, Op: op, Keys: keys, Err: err}
}

func keysOf(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys
}
