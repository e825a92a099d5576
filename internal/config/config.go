package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are layered in this order, later layers winning:
// Layer 1: built-in defaults (ApplyDefaults)
// Layer 2: user config file (~/.config/ghostpni/config.yaml or --config)
// Layer 3: .env file, environment variables and runtime overrides
type Config struct {
	// Network selects the endpoint profile to dispatch against.
	Network string `mapstructure:"network"`

	// NetworksFile points at an optional YAML file of custom networks.
	NetworksFile string `mapstructure:"networks_file"`

	// Networks declares custom networks inline, name -> endpoint URLs.
	Networks map[string][]string `mapstructure:"networks"`

	Mimicry   MimicryConfig   `mapstructure:"mimicry"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Decoys    DecoyConfig     `mapstructure:"decoys"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// MimicryConfig holds the decoy schedule and the cover policy.
type MimicryConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`

	HeartbeatMin      time.Duration `mapstructure:"heartbeat_min"`
	HeartbeatMax      time.Duration `mapstructure:"heartbeat_max"`
	HeartbeatBurstMax int           `mapstructure:"heartbeat_burst_max"`

	// StormProbability is a percentage in [0, 100] evaluated once per window.
	StormProbability  int           `mapstructure:"storm_probability"`
	StormWindow       time.Duration `mapstructure:"storm_window"`
	StormIntensityMin int           `mapstructure:"storm_intensity_min"`
	StormIntensityMax int           `mapstructure:"storm_intensity_max"`
	StormDurationMin  time.Duration `mapstructure:"storm_duration_min"`
	StormDurationMax  time.Duration `mapstructure:"storm_duration_max"`
	StormJitter       float64       `mapstructure:"storm_jitter"`
	StormOnSubmit     bool          `mapstructure:"storm_on_submit"`

	DecoysEnabled    bool `mapstructure:"decoys_enabled"`
	NoiseRatioTarget int  `mapstructure:"noise_ratio_target"`
	MinDecoysPerReal int  `mapstructure:"min_decoys_per_real_tx"`

	// Seed makes the schedule reproducible. Zero draws a random seed.
	Seed uint64 `mapstructure:"seed"`
}

// DispatchConfig controls transport, retries and endpoint health.
type DispatchConfig struct {
	HTTPTimeout           time.Duration `mapstructure:"http_timeout"`
	MaxRetryAttempts      int           `mapstructure:"max_retry_attempts"`
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
	DegradedThreshold     int           `mapstructure:"degraded_threshold"`
	DegradedCooldown      time.Duration `mapstructure:"degraded_cooldown"`
	UserAgent             string        `mapstructure:"user_agent"`

	// PrivateEndpoints, when set, carry real transactions instead of the
	// public pool.
	PrivateEndpoints []string `mapstructure:"private_endpoints"`
}

// DecoyConfig adds contracts to the built-in decoy targets.
type DecoyConfig struct {
	Contracts []ContractConfig `mapstructure:"contracts"`
}

// ContractConfig is one user-supplied decoy target.
type ContractConfig struct {
	Address  string `mapstructure:"address"`
	Name     string `mapstructure:"name"`
	Category string `mapstructure:"category"`
}

// DashboardConfig contains status snapshot settings.
type DashboardConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ActivityLimit   int           `mapstructure:"activity_limit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// WaitTimeout bounds how long a request blocks on a transaction outcome.
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// JournalConfig controls the persistent dispatch journal.
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Retention prunes older rows at startup. Zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
