package database

import (
	"fmt"
)

// migrations run in order on every Open; each must be idempotent
var migrations = []string{
	createKVStoreTable,
}

func (db *DB) migrate() error {
	for i, migration := range migrations {
		if _, err := db.conn.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
	}
	return nil
}

const createKVStoreTable = `
CREATE TABLE IF NOT EXISTS kv_store (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL, -- sealed for sensitive keys
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`
