package storage

import (
	"context"
	"fmt"

	"ferry-booking-client/internal/database"
)

type sqliteStore struct {
	db *database.DB
}

// NewSQLite opens (or creates) the encrypted session database.
func NewSQLite(cfg SQLiteConfig) (KV, error) {
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("sqlite database path required")
	}

	key, err := database.LoadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}

	db, err := database.Open(database.Options{Path: cfg.DatabasePath, Key: key})
	if err != nil {
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	values, err := s.db.GetValues(ctx, keys...)
	if err != nil {
		return nil, wrap(DriverSQLite, "get", keys, err)
	}
	return values, nil
}

func (s *sqliteStore) Set(ctx context.Context, values map[string]string) error {
	return wrap(DriverSQLite, "set", keysOf(values), s.db.SetValues(ctx, values))
}

func (s *sqliteStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	stored, err := s.db.InsertValueIfAbsent(ctx, key, value)
	if err != nil {
		return "", wrap(DriverSQLite, "setnx", []string{key}, err)
	}
	return stored, nil
}

func (s *sqliteStore) Delete(ctx context.Context, keys ...string) error {
	return wrap(DriverSQLite, "delete", keys, s.db.DeleteValues(ctx, keys...))
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
