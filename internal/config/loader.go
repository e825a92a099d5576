// Package config provides centralized configuration management for ghostpni.
// Layers, later winning:
// Layer 1: built-in defaults (ApplyDefaults)
// Layer 2: user config file (discovered via app identity, or SetConfigFile)
// Layer 3: .env file, environment variables and runtime overrides
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ghostpni/ghostpni/internal/appid"
)

// DotEnvFile is loaded from the working directory when present.
const DotEnvFile = ".env"

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity

	// explicitConfigFile replaces user config discovery when set.
	explicitConfigFile string
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetConfigFile pins the user config file, e.g. from --config. An empty path
// restores XDG discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	explicitConfigFile = strings.TrimSpace(path)
}

// Load builds the configuration from defaults, the user config file, .env,
// the environment and runtime overrides, then validates it.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	ApplyDefaults(v)

	path, err := userConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	allOverrides := []map[string]any{envOverrides}
	allOverrides = append(allOverrides, runtimeOverrides...)
	for _, overrides := range allOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge overrides: %w", err)
		}
	}

	cfg, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

func decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads a .env file without overriding variables already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// userConfigFile returns the explicit config file or the first existing XDG
// candidate. An explicit file that does not exist is an error.
func userConfigFile() (string, error) {
	configMu.RLock()
	explicit := explicitConfigFile
	configMu.RUnlock()

	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	for _, candidate := range getUserConfigPaths() {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getUserConfigPaths returns the list of user config file paths to check
// Uses gofulmen/config for XDG-compliant path discovery
func getUserConfigPaths() []string {
	if appIdentity == nil {
		return []string{}
	}

	appName := appIdentity.ConfigName
	if strings.TrimSpace(appName) == "" {
		appName = appIdentity.BinaryName
	}
	if strings.TrimSpace(appName) == "" {
		appName = "ghostpni"
	}

	legacyNames := []string{}
	if appIdentity.BinaryName != "" && appIdentity.BinaryName != appName {
		legacyNames = append(legacyNames, appIdentity.BinaryName)
	}

	return gfconfig.GetAppConfigPaths(appName, legacyNames...)
}

func envPrefix() string {
	prefix := "GHOSTPNI_"
	if appIdentity != nil && strings.TrimSpace(appIdentity.EnvPrefix) != "" {
		prefix = appIdentity.EnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// EnvName returns the prefixed environment variable name for a suffix.
func EnvName(suffix string) string {
	return envPrefix() + suffix
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := envPrefix()

	return []EnvVarSpec{
		// Network selection
		{Name: prefix + "NETWORK", Path: []string{"network"}, Type: EnvString},
		{Name: prefix + "NETWORKS_FILE", Path: []string{"networks_file"}, Type: EnvString},

		// Mimicry schedule
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "TICK_INTERVAL", Path: []string{"mimicry", "tick_interval"}, Type: EnvString},
		{Name: prefix + "HEARTBEAT_MIN", Path: []string{"mimicry", "heartbeat_min"}, Type: EnvString},
		{Name: prefix + "HEARTBEAT_MAX", Path: []string{"mimicry", "heartbeat_max"}, Type: EnvString},
		{Name: prefix + "HEARTBEAT_BURST_MAX", Path: []string{"mimicry", "heartbeat_burst_max"}, Type: EnvInt},
		{Name: prefix + "STORM_PROBABILITY", Path: []string{"mimicry", "storm_probability"}, Type: EnvInt},
		{Name: prefix + "STORM_WINDOW", Path: []string{"mimicry", "storm_window"}, Type: EnvString},
		{Name: prefix + "STORM_INTENSITY_MIN", Path: []string{"mimicry", "storm_intensity_min"}, Type: EnvInt},
		{Name: prefix + "STORM_INTENSITY_MAX", Path: []string{"mimicry", "storm_intensity_max"}, Type: EnvInt},
		{Name: prefix + "STORM_DURATION_MIN", Path: []string{"mimicry", "storm_duration_min"}, Type: EnvString},
		{Name: prefix + "STORM_DURATION_MAX", Path: []string{"mimicry", "storm_duration_max"}, Type: EnvString},
		{Name: prefix + "STORM_JITTER", Path: []string{"mimicry", "storm_jitter"}, Type: EnvString},
		{Name: prefix + "STORM_ON_SUBMIT", Path: []string{"mimicry", "storm_on_submit"}, Type: EnvBool},
		{Name: prefix + "DECOYS_ENABLED", Path: []string{"mimicry", "decoys_enabled"}, Type: EnvBool},
		{Name: prefix + "NOISE_RATIO_TARGET", Path: []string{"mimicry", "noise_ratio_target"}, Type: EnvInt},
		{Name: prefix + "MIN_DECOYS_PER_REAL_TX", Path: []string{"mimicry", "min_decoys_per_real_tx"}, Type: EnvInt},
		{Name: prefix + "SEED", Path: []string{"mimicry", "seed"}, Type: EnvInt},

		// Dispatch
		{Name: prefix + "HTTP_TIMEOUT", Path: []string{"dispatch", "http_timeout"}, Type: EnvString},
		{Name: prefix + "MAX_RETRY_ATTEMPTS", Path: []string{"dispatch", "max_retry_attempts"}, Type: EnvInt},
		{Name: prefix + "MAX_CONCURRENT_REQUESTS", Path: []string{"dispatch", "max_concurrent_requests"}, Type: EnvInt},
		{Name: prefix + "DEGRADED_THRESHOLD", Path: []string{"dispatch", "degraded_threshold"}, Type: EnvInt},
		{Name: prefix + "DEGRADED_COOLDOWN", Path: []string{"dispatch", "degraded_cooldown"}, Type: EnvString},
		{Name: prefix + "USER_AGENT", Path: []string{"dispatch", "user_agent"}, Type: EnvString},
		{Name: prefix + "PRIVATE_ENDPOINTS", Path: []string{"dispatch", "private_endpoints"}, Type: EnvString},

		// Dashboard
		{Name: prefix + "DASHBOARD_REFRESH", Path: []string{"dashboard", "refresh_interval"}, Type: EnvString},

		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},
		{Name: prefix + "WAIT_TIMEOUT", Path: []string{"server", "wait_timeout"}, Type: EnvString},
		{Name: prefix + "CORS_ORIGINS", Path: []string{"server", "cors_origins"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Journal
		{Name: prefix + "JOURNAL_ENABLED", Path: []string{"journal", "enabled"}, Type: EnvBool},
		{Name: prefix + "JOURNAL_RETENTION", Path: []string{"journal", "retention"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_PPROF_ENABLED", Path: []string{"debug", "pprof_enabled"}, Type: EnvBool},
	}
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "ghostpni" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = "ghostpni"
	binaryName = "ghostpni"
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultCacheDir returns the XDG-compliant cache directory for the app.
func DefaultCacheDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppCacheDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}
