package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/rpc"
)

func fastMimicry() map[string]any {
	return map[string]any{
		"mimicry": map[string]any{
			"tick_interval":          "5ms",
			"heartbeat_min":          "10ms",
			"heartbeat_max":          "20ms",
			"storm_probability":      0,
			"storm_on_submit":        false,
			"min_decoys_per_real_tx": 2,
			"noise_ratio_target":     0,
			"seed":                   7,
		},
		"dashboard": map[string]any{"refresh_interval": "10ms"},
	}
}

func TestSimulationReleasesTransactions(t *testing.T) {
	cfg := loadTestConfig(t, fastMimicry())
	network, err := cfg.ResolveNetwork()
	require.NoError(t, err)

	transport := rpc.NewSimulatedTransport(time.Millisecond, 2*time.Millisecond, 0, nil)
	sim := &simulation{
		cfg:          cfg,
		network:      network,
		transport:    transport,
		transactions: 2,
		duration:     10 * time.Second,
		payloadRand:  seededRand(cfg.Mimicry.Seed, payloadStream),
	}

	report, err := sim.run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, network.Name, report.Network)
	assert.Less(t, report.Duration, 10*time.Second)
	require.Len(t, report.Reals, 2)
	for _, status := range report.Reals {
		assert.Equal(t, core.RealSucceeded, status.State)
		assert.Equal(t, 2, status.CoverTarget)
		assert.GreaterOrEqual(t, status.CoverSent, 2)
	}
	assert.Equal(t, int64(2), report.Snapshot.RealsReleased)
	assert.GreaterOrEqual(t, report.Snapshot.DecoysEmitted, int64(2))
	assert.GreaterOrEqual(t, transport.Calls(), int64(4))
}

func TestSimulationWithoutTransactionsRunsForDuration(t *testing.T) {
	cfg := loadTestConfig(t, fastMimicry())
	network, err := cfg.ResolveNetwork()
	require.NoError(t, err)

	sim := &simulation{
		cfg:       cfg,
		network:   network,
		transport: rpc.NewSimulatedTransport(0, time.Millisecond, 0, nil),
		duration:  150 * time.Millisecond,
	}

	report, err := sim.run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.Duration, 150*time.Millisecond)
	assert.Empty(t, report.Reals)
	assert.Positive(t, report.Snapshot.DecoysEmitted)
}

func TestSimulationCancelsUnreleasedTransactions(t *testing.T) {
	overrides := fastMimicry()
	overrides["mimicry"].(map[string]any)["min_decoys_per_real_tx"] = 10000
	cfg := loadTestConfig(t, overrides)
	network, err := cfg.ResolveNetwork()
	require.NoError(t, err)

	sim := &simulation{
		cfg:          cfg,
		network:      network,
		transport:    rpc.NewSimulatedTransport(0, 0, 0, nil),
		transactions: 1,
		duration:     100 * time.Millisecond,
	}

	report, err := sim.run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Reals, 1)
	assert.Equal(t, core.RealCancelled, report.Reals[0].State)
	assert.Zero(t, report.Snapshot.RealsReleased)
}

func TestSyntheticTransactionIsWrappable(t *testing.T) {
	sim := &simulation{payloadRand: seededRand(1, payloadStream)}
	raw := sim.syntheticTransaction()
	assert.Len(t, raw, 2+220)

	payload, err := rpc.WrapRawTransaction(1, raw)
	require.NoError(t, err)
	request, err := rpc.ParseRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, "eth_sendRawTransaction", request.Method)
}
