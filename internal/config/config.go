// Package config loads and validates reviewd configuration from file,
// environment variables, and defaults.
package config

import (
	"errors"
	"log/slog"
	"time"
)

// Defaults applied when neither config file nor environment provides a value.
const (
	// DefaultCacheMaxSizeGB is the repository cache quota in gigabytes.
	DefaultCacheMaxSizeGB = 10

	// DefaultCacheTTLHours is the clone freshness window in hours.
	DefaultCacheTTLHours = 24

	// DefaultJobPoolSize is the number of concurrent scan executors.
	DefaultJobPoolSize = 4

	// DefaultJobRetentionHours is how long terminal jobs are kept.
	DefaultJobRetentionHours = 24

	// DefaultSweepIntervalHours is the cache/token sweep cadence.
	DefaultSweepIntervalHours = 6

	// DefaultSyncIntervalHours is the auto-sync cadence.
	DefaultSyncIntervalHours = 1

	// DefaultHealthIntervalHours is the health snapshot cadence.
	DefaultHealthIntervalHours = 4

	// DefaultSyncBatch caps projects refreshed per auto-sync pass.
	DefaultSyncBatch = 10

	// DefaultListenAddr is the HTTP listen address for serve mode.
	DefaultListenAddr = ":8080"

	// DefaultReadTimeoutSec bounds HTTP request reads.
	DefaultReadTimeoutSec = 30

	// DefaultShutdownTimeoutSec bounds graceful HTTP shutdown.
	DefaultShutdownTimeoutSec = 10

	// DefaultLogLevel is the minimum log severity.
	DefaultLogLevel = "info"
)

// Config is the top-level configuration struct for reviewd.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Cache       CacheConfig       `mapstructure:"cache"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Server      ServerConfig      `mapstructure:"server"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// CacheConfig holds repository cache sizing.
type CacheConfig struct {
	// Root is the cache directory. Empty selects a per-user default at
	// wiring time.
	Root      string `mapstructure:"root"`
	MaxSizeGB int    `mapstructure:"max_size_gb"`
	TTLHours  int    `mapstructure:"ttl_hours"`
}

// mbPerGB converts the gigabyte quota into cache megabytes.
const mbPerGB = 1024

// QuotaMB returns the cache quota in megabytes.
func (c CacheConfig) QuotaMB() float64 {
	return float64(c.MaxSizeGB) * mbPerGB
}

// TTL returns the clone freshness window as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// JobsConfig holds scan job executor settings.
type JobsConfig struct {
	PoolSize       int `mapstructure:"pool_size"`
	RetentionHours int `mapstructure:"retention_hours"`
}

// Retention returns the terminal-job retention window as a duration.
func (j JobsConfig) Retention() time.Duration {
	return time.Duration(j.RetentionHours) * time.Hour
}

// MaintenanceConfig holds background maintenance cadences.
type MaintenanceConfig struct {
	SweepIntervalHours  int `mapstructure:"sweep_interval_hours"`
	SyncIntervalHours   int `mapstructure:"sync_interval_hours"`
	HealthIntervalHours int `mapstructure:"health_interval_hours"`
	SyncBatch           int `mapstructure:"sync_batch"`
}

// ServerConfig holds serve-mode HTTP settings.
type ServerConfig struct {
	ListenAddr         string `mapstructure:"listen_addr"`
	ReadTimeoutSec     int    `mapstructure:"read_timeout_sec"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec"`
}

// TelemetryConfig holds logging and OpenTelemetry export settings.
type TelemetryConfig struct {
	// Environment is the deployment environment ("production", "dev", ...).
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	LogLevel     string  `mapstructure:"log_level"`
	LogJSON      bool    `mapstructure:"log_json"`
}

// SlogLevel maps the configured level name to an slog.Level.
// Unknown names fall back to info; Validate rejects them first.
func (t TelemetryConfig) SlogLevel() slog.Level {
	switch t.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// sampleRatioMax is the upper bound for the trace sampling ratio.
const sampleRatioMax = 1.0

// Sentinel errors for configuration validation.
var (
	// ErrInvalidCacheMaxSize indicates the cache quota is not positive.
	ErrInvalidCacheMaxSize = errors.New("cache.max_size_gb must be positive")
	// ErrInvalidCacheTTL indicates the cache TTL is not positive.
	ErrInvalidCacheTTL = errors.New("cache.ttl_hours must be positive")
	// ErrInvalidPoolSize indicates the job pool size is not positive.
	ErrInvalidPoolSize = errors.New("jobs.pool_size must be positive")
	// ErrInvalidRetention indicates the job retention is not positive.
	ErrInvalidRetention = errors.New("jobs.retention_hours must be positive")
	// ErrInvalidSweepInterval indicates the sweep cadence is not positive.
	ErrInvalidSweepInterval = errors.New("maintenance.sweep_interval_hours must be positive")
	// ErrInvalidSyncInterval indicates the sync cadence is not positive.
	ErrInvalidSyncInterval = errors.New("maintenance.sync_interval_hours must be positive")
	// ErrInvalidHealthInterval indicates the health cadence is not positive.
	ErrInvalidHealthInterval = errors.New("maintenance.health_interval_hours must be positive")
	// ErrInvalidSyncBatch indicates the sync batch size is not positive.
	ErrInvalidSyncBatch = errors.New("maintenance.sync_batch must be positive")
	// ErrEmptyListenAddr indicates the serve listen address is empty.
	ErrEmptyListenAddr = errors.New("server.listen_addr must not be empty")
	// ErrInvalidSampleRatio indicates the sampling ratio is out of range.
	ErrInvalidSampleRatio = errors.New("telemetry.sample_ratio must be between 0 and 1")
	// ErrInvalidLogLevel indicates an unknown log level name.
	ErrInvalidLogLevel = errors.New("telemetry.log_level must be one of debug, info, warn, error")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	cacheErr := c.validateCache()
	if cacheErr != nil {
		return cacheErr
	}

	jobsErr := c.validateJobs()
	if jobsErr != nil {
		return jobsErr
	}

	maintErr := c.validateMaintenance()
	if maintErr != nil {
		return maintErr
	}

	return c.validateServerTelemetry()
}

func (c *Config) validateCache() error {
	if c.Cache.MaxSizeGB <= 0 {
		return ErrInvalidCacheMaxSize
	}

	if c.Cache.TTLHours <= 0 {
		return ErrInvalidCacheTTL
	}

	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.PoolSize <= 0 {
		return ErrInvalidPoolSize
	}

	if c.Jobs.RetentionHours <= 0 {
		return ErrInvalidRetention
	}

	return nil
}

func (c *Config) validateMaintenance() error {
	if c.Maintenance.SweepIntervalHours <= 0 {
		return ErrInvalidSweepInterval
	}

	if c.Maintenance.SyncIntervalHours <= 0 {
		return ErrInvalidSyncInterval
	}

	if c.Maintenance.HealthIntervalHours <= 0 {
		return ErrInvalidHealthInterval
	}

	if c.Maintenance.SyncBatch <= 0 {
		return ErrInvalidSyncBatch
	}

	return nil
}

func (c *Config) validateServerTelemetry() error {
	if c.Server.ListenAddr == "" {
		return ErrEmptyListenAddr
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > sampleRatioMax {
		return ErrInvalidSampleRatio
	}

	switch c.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return ErrInvalidLogLevel
	}
}
