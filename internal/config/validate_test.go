package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostpni/ghostpni/internal/core/decoy"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	ApplyDefaults(v)
	cfg, err := decode(v.AllSettings())
	require.NoError(t, err)
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	require.NoError(t, Validate(defaultConfig(t)))
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"heartbeat order", func(c *Config) { c.Mimicry.HeartbeatMin = time.Minute }, "mimicry.heartbeat_min"},
		{"heartbeat zero", func(c *Config) { c.Mimicry.HeartbeatMin = 0 }, "mimicry.heartbeat_min must be positive"},
		{"storm probability", func(c *Config) { c.Mimicry.StormProbability = 101 }, "mimicry.storm_probability"},
		{"intensity order", func(c *Config) { c.Mimicry.StormIntensityMin = 90 }, "mimicry.storm_intensity_min"},
		{"duration order", func(c *Config) { c.Mimicry.StormDurationMax = time.Second }, "mimicry.storm_duration_min"},
		{"jitter", func(c *Config) { c.Mimicry.StormJitter = 1.5 }, "mimicry.storm_jitter"},
		{"negative ratio", func(c *Config) { c.Mimicry.NoiseRatioTarget = -1 }, "mimicry.noise_ratio_target"},
		{"timeout", func(c *Config) { c.Dispatch.HTTPTimeout = 0 }, "dispatch.http_timeout"},
		{"retries", func(c *Config) { c.Dispatch.MaxRetryAttempts = 0 }, "dispatch.max_retry_attempts"},
		{"concurrency", func(c *Config) { c.Dispatch.MaxConcurrentRequests = 0 }, "dispatch.max_concurrent_requests"},
		{"private endpoint", func(c *Config) { c.Dispatch.PrivateEndpoints = []string{"ftp://relay"} }, "dispatch.private_endpoints"},
		{"dashboard", func(c *Config) { c.Dashboard.RefreshInterval = 0 }, "dashboard.refresh_interval"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"network", func(c *Config) { c.Network = "atlantis" }, "unknown network"},
		{"contract address", func(c *Config) {
			c.Decoys.Contracts = []ContractConfig{{Address: "0x12", Name: "bad"}}
		}, "invalid address"},
		{"contract category", func(c *Config) {
			c.Decoys.Contracts = []ContractConfig{{Address: "0x00000000000000000000000000000000000000aa", Category: "casino"}}
		}, "unknown category"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tc.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Dispatch.MaxRetryAttempts = 0
	cfg.Dispatch.MaxConcurrentRequests = 0

	err := Validate(cfg)
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Len(t, validation.Problems, 2)
}

func TestValidateNil(t *testing.T) {
	require.Error(t, Validate(nil))
}

func TestDecoyContracts(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Decoys.Contracts = []ContractConfig{
		{Address: " 0x00000000000000000000000000000000000000aa ", Name: "Vault", Category: "Lending"},
	}

	contracts := cfg.DecoyContracts()
	require.Len(t, contracts, len(decoy.KnownContracts("sepolia"))+1)
	last := contracts[len(contracts)-1]
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", last.Address)
	assert.Equal(t, decoy.CategoryLending, last.Category)
}

func TestResolveNetwork(t *testing.T) {
	t.Run("BuiltIn", func(t *testing.T) {
		cfg := defaultConfig(t)
		cfg.Network = " Sepolia "

		network, err := cfg.ResolveNetwork()
		require.NoError(t, err)
		assert.Equal(t, "sepolia", network.Name)
		assert.True(t, network.BuiltIn)
		assert.NotEmpty(t, network.Endpoints)
	})

	t.Run("InlineOverridesBuiltIn", func(t *testing.T) {
		cfg := defaultConfig(t)
		cfg.Networks = map[string][]string{"sepolia": {"http://127.0.0.1:8545"}}

		network, err := cfg.ResolveNetwork()
		require.NoError(t, err)
		assert.False(t, network.BuiltIn)
		assert.Equal(t, []string{"http://127.0.0.1:8545"}, network.Endpoints)
	})

	t.Run("NetworksFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "networks.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
networks:
  - name: devnet
    chain_id: 1337
    endpoints:
      - http://127.0.0.1:8545
      - http://127.0.0.1:8546
`), 0o600))

		cfg := defaultConfig(t)
		cfg.NetworksFile = path
		cfg.Network = "devnet"

		network, err := cfg.ResolveNetwork()
		require.NoError(t, err)
		assert.Equal(t, int64(1337), network.ChainID)
		assert.Len(t, network.Endpoints, 2)

		all, err := cfg.AllNetworks()
		require.NoError(t, err)
		names := make([]string, 0, len(all))
		for _, n := range all {
			names = append(names, n.Name)
		}
		assert.Contains(t, names, "devnet")
		assert.Contains(t, names, "goerli")
	})

	t.Run("NetworksFileRejectsEmptyEndpoints", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "networks.yaml")
		require.NoError(t, os.WriteFile(path, []byte("networks:\n  - name: empty\n    endpoints: []\n"), 0o600))

		_, err := LoadNetworksFile(path)
		require.Error(t, err)
	})

	t.Run("NetworksFileRejectsUnknownKeys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "networks.yaml")
		body := "networks:\n  - name: devnet\n    endpoints: [\"https://rpc.devnet.example\"]\n    endpoint: typo\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		_, err := LoadNetworksFile(path)
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("NetworksFileRejectsNonHTTPEndpoint", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "networks.yaml")
		body := "networks:\n  - name: devnet\n    endpoints: [\"ws://rpc.devnet.example\"]\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		_, err := LoadNetworksFile(path)
		require.Error(t, err)
	})

	t.Run("InlineEmptyEndpoints", func(t *testing.T) {
		cfg := defaultConfig(t)
		cfg.Networks = map[string][]string{"broken": {}}
		cfg.Network = "broken"

		_, err := cfg.ResolveNetwork()
		require.Error(t, err)
	})
}
