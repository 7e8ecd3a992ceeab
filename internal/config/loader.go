package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".reviewd"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for reviewd settings.
const envPrefix = "REVIEWD"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Bare environment variable names recognized for compatibility with
// pre-existing deployments, alongside the REVIEWD_-prefixed forms.
const (
	envMaxCacheSizeGB = "MAX_CACHE_SIZE_GB"
	envCacheTTLHours  = "DEFAULT_CACHE_TTL_HOURS"
	envDeployment     = "REVIEWD_ENV"
)

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	bindErr := bindBareEnv(viperCfg)
	if bindErr != nil {
		return nil, bindErr
	}

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// bindBareEnv wires the unprefixed environment variable names to their
// config keys. The prefixed REVIEWD_ forms are already covered by
// AutomaticEnv; listing them first keeps them as the preferred source.
func bindBareEnv(viperCfg *viper.Viper) error {
	bindings := map[string][]string{
		"cache.max_size_gb":     {"REVIEWD_CACHE_MAX_SIZE_GB", envMaxCacheSizeGB},
		"cache.ttl_hours":       {"REVIEWD_CACHE_TTL_HOURS", envCacheTTLHours},
		"telemetry.environment": {"REVIEWD_TELEMETRY_ENVIRONMENT", envDeployment},
	}

	for key, vars := range bindings {
		err := viperCfg.BindEnv(append([]string{key}, vars...)...)
		if err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	return nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("cache.root", "")
	viperCfg.SetDefault("cache.max_size_gb", DefaultCacheMaxSizeGB)
	viperCfg.SetDefault("cache.ttl_hours", DefaultCacheTTLHours)

	viperCfg.SetDefault("jobs.pool_size", DefaultJobPoolSize)
	viperCfg.SetDefault("jobs.retention_hours", DefaultJobRetentionHours)

	viperCfg.SetDefault("maintenance.sweep_interval_hours", DefaultSweepIntervalHours)
	viperCfg.SetDefault("maintenance.sync_interval_hours", DefaultSyncIntervalHours)
	viperCfg.SetDefault("maintenance.health_interval_hours", DefaultHealthIntervalHours)
	viperCfg.SetDefault("maintenance.sync_batch", DefaultSyncBatch)

	viperCfg.SetDefault("server.listen_addr", DefaultListenAddr)
	viperCfg.SetDefault("server.read_timeout_sec", DefaultReadTimeoutSec)
	viperCfg.SetDefault("server.shutdown_timeout_sec", DefaultShutdownTimeoutSec)

	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
	viperCfg.SetDefault("telemetry.log_level", DefaultLogLevel)
	viperCfg.SetDefault("telemetry.log_json", false)
}
