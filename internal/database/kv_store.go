package database

import (
	"context"
	"fmt"
	"strings"
)

// sensitiveKeys are stored encrypted
var sensitiveKeys = map[string]bool{
	"accesstoken":  true,
	"refreshtoken": true,
}

func isSensitive(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// GetValues reads the given keys with a single statement so callers get a
// consistent snapshot. Missing keys are absent from the result.
func (db *DB) GetValues(ctx context.Context, keys ...string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	query := "SELECT key, value FROM kv_store WHERE key IN (" + placeholders + ")"
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan value row: %w", err)
		}

		if isSensitive(key) {
			decrypted, err := db.unseal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt value for key %s: %w", key, err)
			}
			value = string(decrypted)
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating value rows: %w", err)
	}

	return result, nil
}

// SetValues writes all values atomically, encrypting sensitive keys
func (db *DB) SetValues(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin write transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	for key, value := range values {
		stored := value
		if isSensitive(key) {
			stored, err = db.seal([]byte(value))
			if err != nil {
				return fmt.Errorf("failed to encrypt value for key %s: %w", key, err)
			}
		}

		if _, err := tx.ExecContext(ctx, query, key, stored); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit values: %w", err)
	}

	return nil
}

// InsertValueIfAbsent stores value under key unless the key already exists and
// returns whatever value is stored afterwards.
func (db *DB) InsertValueIfAbsent(ctx context.Context, key, value string) (string, error) {
	stored := value
	if isSensitive(key) {
		var err error
		stored, err = db.seal([]byte(value))
		if err != nil {
			return "", fmt.Errorf("failed to encrypt value for key %s: %w", key, err)
		}
	}

	query := "INSERT OR IGNORE INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)"
	if _, err := db.conn.ExecContext(ctx, query, key, stored); err != nil {
		return "", fmt.Errorf("failed to insert %s: %w", key, err)
	}

	values, err := db.GetValues(ctx, key)
	if err != nil {
		return "", err
	}
	return values[key], nil
}

// DeleteValues removes keys; missing keys are not an error
func (db *DB) DeleteValues(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	query := "DELETE FROM kv_store WHERE key IN (" + placeholders + ")"
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete values: %w", err)
	}
	return nil
}
