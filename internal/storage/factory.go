package storage

import (
	"fmt"

	"ferry-booking-client/internal/config"
)

// Driver identifiers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// SQLiteConfig locates the database and its encryption key file
type SQLiteConfig struct {
	DatabasePath string
	KeyFile      string
}

// RedisConfig captures connection options
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// New creates a store based on the storage section of the configuration.
func New(cfg config.StorageConfig) (KV, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(SQLiteConfig{
			DatabasePath: cfg.DatabasePath,
			KeyFile:      cfg.KeyFile,
		})
	case DriverRedis:
		return NewRedis(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
