package config

import (
	"errors"
	"time"
)

// Config represents the sync daemon configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Directory   DirectoryConfig   `mapstructure:"directory"`
	Conversion  ConversionConfig  `mapstructure:"conversion"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents the HTTP intent API configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects and configures the document store backend
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"` // memory, redis or postgres
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
}

// RedisConfig represents the Redis document store configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig represents the PostgreSQL document store configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// AuthConfig represents the principal provider configuration
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// DirectoryConfig points at an optional tenant directory override file
type DirectoryConfig struct {
	File string `mapstructure:"file"`
}

// ConversionConfig represents lead conversion defaults
type ConversionConfig struct {
	SessionFee float64 `mapstructure:"session_fee"`
	OriginTag  string  `mapstructure:"origin_tag"`
}

// RateLimiterConfig represents API rate limiting configuration
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	switch c.Storage.Backend {
	case "memory":
	case "redis":
		if c.Storage.Redis.Host == "" {
			return errors.New("storage.redis.host is required")
		}
	case "postgres":
		if c.Storage.Database.Host == "" {
			return errors.New("storage.database.host is required")
		}
		if c.Storage.Database.Database == "" {
			return errors.New("storage.database.database is required")
		}
		if c.Storage.Database.User == "" {
			return errors.New("storage.database.user is required")
		}
	default:
		return errors.New("storage.backend must be one of: memory, redis, postgres")
	}
	if c.Conversion.SessionFee < 0 {
		return errors.New("conversion.session_fee must not be negative")
	}
	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return errors.New("rate_limiter.requests_per_second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return errors.New("rate_limiter.burst_size must be positive")
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Host: "localhost",
				Port: 6379,
			},
			Database: DatabaseConfig{
				Host:           "localhost",
				Port:           5432,
				Database:       "crmpsico",
				User:           "crmsync",
				MaxConnections: 10,
				MinConnections: 2,
			},
		},
		Conversion: ConversionConfig{
			SessionFee: 150.00,
			OriginTag:  "Landing Page Lead",
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
