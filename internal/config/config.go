package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environments selectable at build/config time
const (
	EnvironmentDev  = "dev"
	EnvironmentProd = "prod"
)

// Config represents the client configuration
type Config struct {
	// API endpoint selection
	Environment string `mapstructure:"environment"` // dev, prod
	DevURL      string `mapstructure:"dev_url"`
	ProdURL     string `mapstructure:"prod_url"`

	// HTTP behaviour
	RequestTimeout int `mapstructure:"request_timeout"` // seconds
	RefreshTimeout int `mapstructure:"refresh_timeout"` // seconds

	// Share one refresh call between concurrent 401 responses
	SingleFlightRefresh bool `mapstructure:"single_flight_refresh"`

	Storage StorageConfig `mapstructure:"storage"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	DevServer DevServerConfig `mapstructure:"devserver"`
}

// StorageConfig selects where tokens and the device identifier are persisted
type StorageConfig struct {
	Driver       string      `mapstructure:"driver"` // memory, sqlite, redis
	DatabasePath string      `mapstructure:"database_path"`
	KeyFile      string      `mapstructure:"key_file"`
	Redis        RedisConfig `mapstructure:"redis"`
}

// RedisConfig captures connection options for the redis storage driver
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// DevServerConfig configures the local development API server
type DevServerConfig struct {
	Addr       string `mapstructure:"addr"`
	AccessTTL  int    `mapstructure:"access_ttl"`  // seconds
	RefreshTTL int    `mapstructure:"refresh_ttl"` // seconds
	SigningKey string `mapstructure:"signing_key"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Environment:         EnvironmentProd,
		DevURL:              "http://127.0.0.1:8085",
		ProdURL:             "https://api.ferrybooking.app",
		RequestTimeout:      30,
		RefreshTimeout:      15,
		SingleFlightRefresh: true,
		Storage: StorageConfig{
			Driver:       "sqlite",
			DatabasePath: filepath.Join(dataDir, "session.db"),
			KeyFile:      filepath.Join(dataDir, "session.key"),
			Redis: RedisConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "ferry:session:",
			},
		},
		LogLevel: "info",
		LogFile:  "",
		DevServer: DevServerConfig{
			Addr:       "127.0.0.1:8085",
			AccessTTL:  300,
			RefreshTTL: 86400,
			SigningKey: "dev-signing-key",
		},
	}
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ferry-client"))
		}
	}

	// FERRY_STORAGE_DRIVER overrides storage.driver, and so on
	v.SetEnvPrefix("FERRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override nested values
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("environment", cfg.Environment)
	v.SetDefault("dev_url", cfg.DevURL)
	v.SetDefault("prod_url", cfg.ProdURL)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("refresh_timeout", cfg.RefreshTimeout)
	v.SetDefault("single_flight_refresh", cfg.SingleFlightRefresh)
	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.database_path", cfg.Storage.DatabasePath)
	v.SetDefault("storage.key_file", cfg.Storage.KeyFile)
	v.SetDefault("storage.redis.addr", cfg.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", cfg.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", cfg.Storage.Redis.DB)
	v.SetDefault("storage.redis.prefix", cfg.Storage.Redis.Prefix)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("devserver.addr", cfg.DevServer.Addr)
	v.SetDefault("devserver.access_ttl", cfg.DevServer.AccessTTL)
	v.SetDefault("devserver.refresh_ttl", cfg.DevServer.RefreshTTL)
	v.SetDefault("devserver.signing_key", cfg.DevServer.SigningKey)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment != EnvironmentDev && c.Environment != EnvironmentProd {
		return fmt.Errorf("environment must be one of: dev, prod")
	}

	if c.BaseURL() == "" {
		return fmt.Errorf("%s_url is required", c.Environment)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh_timeout must be positive")
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.DatabasePath == "" {
			return fmt.Errorf("storage.database_path is required for sqlite")
		}
		if c.Storage.KeyFile == "" {
			return fmt.Errorf("storage.key_file is required for sqlite")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for redis")
		}
	default:
		return fmt.Errorf("storage.driver must be one of: memory, sqlite, redis")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	return nil
}

// BaseURL returns the API host for the configured environment
func (c *Config) BaseURL() string {
	if c.Environment == EnvironmentDev {
		return strings.TrimSuffix(c.DevURL, "/")
	}
	return strings.TrimSuffix(c.ProdURL, "/")
}

// RequestTimeoutDuration returns the per-request HTTP timeout
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// RefreshTimeoutDuration bounds a single token refresh call
func (c *Config) RefreshTimeoutDuration() time.Duration {
	return time.Duration(c.RefreshTimeout) * time.Second
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ferry-client")
	}
	return "."
}
