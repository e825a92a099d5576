package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points XDG lookups and the working directory at temp dirs so a
// developer's own config or .env never leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	SetConfigFile("")
	t.Cleanup(func() { SetConfigFile("") })
	return dir
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "sepolia", cfg.Network)

		// Mimicry defaults
		assert.Equal(t, 100*time.Millisecond, cfg.Mimicry.TickInterval)
		assert.Equal(t, 5*time.Second, cfg.Mimicry.HeartbeatMin)
		assert.Equal(t, 45*time.Second, cfg.Mimicry.HeartbeatMax)
		assert.Equal(t, 1, cfg.Mimicry.HeartbeatBurstMax)
		assert.Equal(t, 30, cfg.Mimicry.StormProbability)
		assert.Equal(t, time.Minute, cfg.Mimicry.StormWindow)
		assert.Equal(t, 30, cfg.Mimicry.StormIntensityMin)
		assert.Equal(t, 80, cfg.Mimicry.StormIntensityMax)
		assert.Equal(t, 2*time.Second, cfg.Mimicry.StormDurationMin)
		assert.Equal(t, 8*time.Second, cfg.Mimicry.StormDurationMax)
		assert.Equal(t, 0.5, cfg.Mimicry.StormJitter)
		assert.True(t, cfg.Mimicry.DecoysEnabled)
		assert.True(t, cfg.Mimicry.StormOnSubmit)
		assert.Equal(t, 50, cfg.Mimicry.NoiseRatioTarget)
		assert.Equal(t, 50, cfg.Mimicry.MinDecoysPerReal)

		// Dispatch defaults
		assert.Equal(t, 10*time.Second, cfg.Dispatch.HTTPTimeout)
		assert.Equal(t, 3, cfg.Dispatch.MaxRetryAttempts)
		assert.Equal(t, 5, cfg.Dispatch.MaxConcurrentRequests)
		assert.Equal(t, 3, cfg.Dispatch.DegradedThreshold)
		assert.Empty(t, cfg.Dispatch.PrivateEndpoints)

		assert.Equal(t, 5*time.Second, cfg.Dashboard.RefreshInterval)

		// Server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, 2*time.Minute, cfg.Server.WaitTimeout)

		// Store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("ghostpni"), "ghostpni.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.True(t, cfg.Journal.Enabled)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
		assert.False(t, cfg.Debug.PprofEnabled)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)

		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"mimicry": map[string]any{
				"noise_ratio_target": 12,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 12, cfg.Mimicry.NoiseRatioTarget)

		// Siblings keep their defaults.
		assert.Equal(t, 50, cfg.Mimicry.MinDecoysPerReal)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("GHOSTPNI_HEARTBEAT_MIN", "2000ms")
		t.Setenv("GHOSTPNI_HEARTBEAT_MAX", "3s")
		t.Setenv("GHOSTPNI_MAX_RETRY_ATTEMPTS", "4")
		t.Setenv("GHOSTPNI_DECOYS_ENABLED", "false")
		t.Setenv("GHOSTPNI_PRIVATE_ENDPOINTS", "https://relay.example,https://backup.example")
		t.Setenv("GHOSTPNI_NETWORK", "goerli")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 2*time.Second, cfg.Mimicry.HeartbeatMin)
		assert.Equal(t, 3*time.Second, cfg.Mimicry.HeartbeatMax)
		assert.Equal(t, 4, cfg.Dispatch.MaxRetryAttempts)
		assert.False(t, cfg.Mimicry.DecoysEnabled)
		assert.Equal(t, []string{"https://relay.example", "https://backup.example"}, cfg.Dispatch.PrivateEndpoints)
		assert.Equal(t, "goerli", cfg.Network)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		dir := isolate(t)

		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 3000\nmimicry:\n  storm_probability: 10\n"), 0o600))
		SetConfigFile(path)
		t.Setenv("GHOSTPNI_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)

		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, 10, cfg.Mimicry.StormProbability)
	})

	t.Run("ConfigFileBeatsDefaults", func(t *testing.T) {
		dir := isolate(t)

		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
network: local
networks:
  local:
    - http://127.0.0.1:8545
dispatch:
  max_concurrent_requests: 8
decoys:
  contracts:
    - address: "0x00000000000000000000000000000000000000aa"
      name: TestSwap
      category: dex
`), 0o600))
		SetConfigFile(path)

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 8, cfg.Dispatch.MaxConcurrentRequests)
		network, err := cfg.ResolveNetwork()
		require.NoError(t, err)
		assert.Equal(t, []string{"http://127.0.0.1:8545"}, network.Endpoints)
		require.Len(t, cfg.Decoys.Contracts, 1)
		assert.Equal(t, "TestSwap", cfg.Decoys.Contracts[0].Name)
	})

	t.Run("MissingExplicitConfigFile", func(t *testing.T) {
		dir := isolate(t)
		SetConfigFile(filepath.Join(dir, "missing.yaml"))

		_, err := Load(ctx)
		require.Error(t, err)
	})

	t.Run("DotEnvFile", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, os.Unsetenv("GHOSTPNI_NOISE_RATIO_TARGET"))
		t.Cleanup(func() { _ = os.Unsetenv("GHOSTPNI_NOISE_RATIO_TARGET") })
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GHOSTPNI_NOISE_RATIO_TARGET=7\n"), 0o600))

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Mimicry.NoiseRatioTarget)
	})

	t.Run("InvalidConfigRejected", func(t *testing.T) {
		isolate(t)
		t.Setenv("GHOSTPNI_HEARTBEAT_MIN", "50s")
		t.Setenv("GHOSTPNI_HEARTBEAT_MAX", "10s")

		cfg, err := Load(ctx)
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.True(t, errors.Is(err, ErrInvalid))
		assert.Contains(t, err.Error(), "mimicry.heartbeat_min")
	})
}

func TestGetConfig(t *testing.T) {
	isolate(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Network, retrieved.Network)
}

func TestEnvSpecs(t *testing.T) {
	isolate(t)
	_, err := Load(context.Background())
	require.NoError(t, err)

	envVarNames := make(map[string]bool)
	for _, spec := range getEnvSpecs() {
		envVarNames[spec.Name] = true
	}

	for _, name := range []string{
		"GHOSTPNI_NETWORK",
		"GHOSTPNI_HEARTBEAT_MIN",
		"GHOSTPNI_HEARTBEAT_MAX",
		"GHOSTPNI_STORM_PROBABILITY",
		"GHOSTPNI_STORM_INTENSITY_MIN",
		"GHOSTPNI_STORM_INTENSITY_MAX",
		"GHOSTPNI_STORM_DURATION_MIN",
		"GHOSTPNI_STORM_DURATION_MAX",
		"GHOSTPNI_NOISE_RATIO_TARGET",
		"GHOSTPNI_MIN_DECOYS_PER_REAL_TX",
		"GHOSTPNI_HTTP_TIMEOUT",
		"GHOSTPNI_MAX_RETRY_ATTEMPTS",
		"GHOSTPNI_MAX_CONCURRENT_REQUESTS",
		"GHOSTPNI_DASHBOARD_REFRESH",
		"GHOSTPNI_LOG_LEVEL",
		"GHOSTPNI_PORT",
		"GHOSTPNI_DB_PATH",
	} {
		assert.True(t, envVarNames[name], "%s must be mapped", name)
	}
	assert.Equal(t, "GHOSTPNI_ADMIN_TOKEN", EnvName("ADMIN_TOKEN"))
}
