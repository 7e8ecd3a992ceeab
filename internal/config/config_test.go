package config_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/reviewd/internal/config"
)

func validConfig() config.Config {
	return config.Config{
		Cache: config.CacheConfig{MaxSizeGB: 10, TTLHours: 24},
		Jobs:  config.JobsConfig{PoolSize: 4, RetentionHours: 24},
		Maintenance: config.MaintenanceConfig{
			SweepIntervalHours:  6,
			SyncIntervalHours:   1,
			HealthIntervalHours: 4,
			SyncBatch:           10,
		},
		Server:    config.ServerConfig{ListenAddr: ":8080", ReadTimeoutSec: 30, ShutdownTimeoutSec: 10},
		Telemetry: config.TelemetryConfig{LogLevel: "info"},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{"zero cache size", func(c *config.Config) { c.Cache.MaxSizeGB = 0 }, config.ErrInvalidCacheMaxSize},
		{"negative cache ttl", func(c *config.Config) { c.Cache.TTLHours = -1 }, config.ErrInvalidCacheTTL},
		{"zero pool size", func(c *config.Config) { c.Jobs.PoolSize = 0 }, config.ErrInvalidPoolSize},
		{"zero retention", func(c *config.Config) { c.Jobs.RetentionHours = 0 }, config.ErrInvalidRetention},
		{"zero sweep interval", func(c *config.Config) { c.Maintenance.SweepIntervalHours = 0 }, config.ErrInvalidSweepInterval},
		{"zero sync interval", func(c *config.Config) { c.Maintenance.SyncIntervalHours = 0 }, config.ErrInvalidSyncInterval},
		{"zero health interval", func(c *config.Config) { c.Maintenance.HealthIntervalHours = 0 }, config.ErrInvalidHealthInterval},
		{"zero sync batch", func(c *config.Config) { c.Maintenance.SyncBatch = 0 }, config.ErrInvalidSyncBatch},
		{"empty listen addr", func(c *config.Config) { c.Server.ListenAddr = "" }, config.ErrEmptyListenAddr},
		{"sample ratio above one", func(c *config.Config) { c.Telemetry.SampleRatio = 1.5 }, config.ErrInvalidSampleRatio},
		{"unknown log level", func(c *config.Config) { c.Telemetry.LogLevel = "trace" }, config.ErrInvalidLogLevel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(&cfg)

			assert.ErrorIs(t, cfg.Validate(), tc.wantErr)
		})
	}
}

func TestSlogLevelMapping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, config.TelemetryConfig{LogLevel: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, config.TelemetryConfig{LogLevel: "info"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, config.TelemetryConfig{LogLevel: "warn"}.SlogLevel())
	assert.Equal(t, slog.LevelError, config.TelemetryConfig{LogLevel: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, config.TelemetryConfig{}.SlogLevel())
}
