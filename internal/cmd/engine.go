package cmd

import (
	"fmt"
	"math/rand/v2"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/ghostpni/ghostpni/internal/config"
	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/decoy"
	"github.com/ghostpni/ghostpni/internal/core/engine"
)

// Seed offsets keep the schedule and the decoy factory on independent
// streams when a seed is configured.
const (
	scheduleStream = 0x9e3779b97f4a7c15
	factoryStream  = 0xbf58476d1ce4e5b9
)

// engineDeps are the runtime collaborators that differ between serve and
// simulate.
type engineDeps struct {
	Transport engine.Transport
	// PrivateTransport defaults to Transport.
	PrivateTransport engine.Transport
	Journal          engine.Journal
	Logger           *logging.Logger
}

// buildEngine wires pools, dispatchers, the limiter and the decoy factory for
// network from cfg.
func buildEngine(cfg *config.Config, network core.Network, deps engineDeps) (*engine.Controller, error) {
	poolOpts := engine.PoolOptions{
		DegradedThreshold: cfg.Dispatch.DegradedThreshold,
		DegradedCooldown:  cfg.Dispatch.DegradedCooldown,
	}

	publicPool, err := engine.NewPool(network.Endpoints, poolOpts)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", network.Name, err)
	}
	public := &engine.Dispatcher{
		Pool:        publicPool,
		Transport:   deps.Transport,
		MaxAttempts: cfg.Dispatch.MaxRetryAttempts,
		Timeout:     cfg.Dispatch.HTTPTimeout,
		Name:        "public",
		Logger:      deps.Logger,
	}

	var private *engine.Dispatcher
	if len(cfg.Dispatch.PrivateEndpoints) > 0 {
		privatePool, err := engine.NewPool(cfg.Dispatch.PrivateEndpoints, poolOpts)
		if err != nil {
			return nil, fmt.Errorf("private endpoints: %w", err)
		}
		transport := deps.PrivateTransport
		if transport == nil {
			transport = deps.Transport
		}
		private = &engine.Dispatcher{
			Pool:        privatePool,
			Transport:   transport,
			MaxAttempts: cfg.Dispatch.MaxRetryAttempts,
			Timeout:     cfg.Dispatch.HTTPTimeout,
			Name:        "private",
			Logger:      deps.Logger,
		}
	}

	scheduleRand, factoryRand := seededRand(cfg.Mimicry.Seed, scheduleStream), seededRand(cfg.Mimicry.Seed, factoryStream)
	factory := decoy.NewFactory(cfg.DecoyContracts(), factoryRand)

	return engine.NewController(engine.Options{
		Network:          network.Name,
		Generator:        generatorConfig(cfg.Mimicry),
		MinDecoysPerReal: cfg.Mimicry.MinDecoysPerReal,
		NoiseRatioTarget: cfg.Mimicry.NoiseRatioTarget,
		DecoysEnabled:    cfg.Mimicry.DecoysEnabled,
		StormOnSubmit:    cfg.Mimicry.StormOnSubmit,
		TickInterval:     cfg.Mimicry.TickInterval,
		SnapshotInterval: cfg.Dashboard.RefreshInterval,
		ActivityLimit:    cfg.Dashboard.ActivityLimit,
	}, engine.Dependencies{
		Public:  public,
		Private: private,
		Limiter: engine.NewLimiter(cfg.Dispatch.MaxConcurrentRequests),
		Decoys:  factory,
		Journal: deps.Journal,
		Logger:  deps.Logger,
		Rand:    scheduleRand,
	})
}

func generatorConfig(m config.MimicryConfig) engine.GeneratorConfig {
	return engine.GeneratorConfig{
		HeartbeatMin:      m.HeartbeatMin,
		HeartbeatMax:      m.HeartbeatMax,
		HeartbeatBurstMax: m.HeartbeatBurstMax,
		StormProbability:  m.StormProbability,
		StormWindow:       m.StormWindow,
		StormIntensityMin: m.StormIntensityMin,
		StormIntensityMax: m.StormIntensityMax,
		StormDurationMin:  m.StormDurationMin,
		StormDurationMax:  m.StormDurationMax,
		StormJitter:       m.StormJitter,
	}
}

// seededRand returns nil for seed 0 so components draw a random seed.
func seededRand(seed uint64, stream uint64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, stream))
}
