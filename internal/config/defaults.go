package config

import (
	"github.com/spf13/viper"
)

// DefaultNetwork is used when no network is configured.
const DefaultNetwork = "sepolia"

// ApplyDefaults registers built-in defaults on a viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetDefault("network", DefaultNetwork)
	v.SetDefault("networks_file", "")
	v.SetDefault("networks", map[string][]string{})

	// Mimicry defaults
	v.SetDefault("mimicry.tick_interval", "100ms")
	v.SetDefault("mimicry.heartbeat_min", "5s")
	v.SetDefault("mimicry.heartbeat_max", "45s")
	v.SetDefault("mimicry.heartbeat_burst_max", 1)
	v.SetDefault("mimicry.storm_probability", 30)
	v.SetDefault("mimicry.storm_window", "60s")
	v.SetDefault("mimicry.storm_intensity_min", 30)
	v.SetDefault("mimicry.storm_intensity_max", 80)
	v.SetDefault("mimicry.storm_duration_min", "2s")
	v.SetDefault("mimicry.storm_duration_max", "8s")
	v.SetDefault("mimicry.storm_jitter", 0.5)
	v.SetDefault("mimicry.storm_on_submit", true)
	v.SetDefault("mimicry.decoys_enabled", true)
	v.SetDefault("mimicry.noise_ratio_target", 50)
	v.SetDefault("mimicry.min_decoys_per_real_tx", 50)
	v.SetDefault("mimicry.seed", 0)

	// Dispatch defaults
	v.SetDefault("dispatch.http_timeout", "10s")
	v.SetDefault("dispatch.max_retry_attempts", 3)
	v.SetDefault("dispatch.max_concurrent_requests", 5)
	v.SetDefault("dispatch.degraded_threshold", 3)
	v.SetDefault("dispatch.degraded_cooldown", "30s")
	v.SetDefault("dispatch.user_agent", "")
	v.SetDefault("dispatch.private_endpoints", []string{})

	v.SetDefault("decoys.contracts", []map[string]any{})

	v.SetDefault("dashboard.refresh_interval", "5s")
	v.SetDefault("dashboard.activity_limit", 20)

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.wait_timeout", "2m")
	v.SetDefault("server.cors_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.retention", "0s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}
