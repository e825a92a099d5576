package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostpni/ghostpni/internal/core"
)

type controllerFixture struct {
	ctrl      *Controller
	clock     *fakeClock
	transport *fakeTransport
	journal   *memoryJournal
}

func steadyGenerator() GeneratorConfig {
	cfg := DefaultGeneratorConfig()
	cfg.HeartbeatMin = time.Second
	cfg.HeartbeatMax = time.Second
	cfg.StormProbability = 0
	return cfg
}

func newControllerFixture(t *testing.T, opts Options, transport *fakeTransport, threshold int) *controllerFixture {
	t.Helper()

	clock := newFakeClock()
	pool, err := NewPool([]string{"https://rpc-a", "https://rpc-b"}, PoolOptions{
		DegradedThreshold: threshold,
		Clock:             clock.Now,
	})
	require.NoError(t, err)

	journal := &memoryJournal{}
	ctrl, err := NewController(opts, Dependencies{
		Public: &Dispatcher{
			Pool:        pool,
			Transport:   transport,
			MaxAttempts: 3,
			Timeout:     time.Second,
			Clock:       clock.Now,
		},
		Limiter: NewLimiter(5),
		Decoys:  &stubDecoys{},
		Journal: journal,
		Clock:   clock.Now,
		Rand:    seededRand(),
	})
	require.NoError(t, err)

	ctrl.start(clock.Now())
	return &controllerFixture{ctrl: ctrl, clock: clock, transport: transport, journal: journal}
}

// step advances the clock, ticks once and waits for launched dispatches.
func (f *controllerFixture) step(d time.Duration) {
	f.clock.Advance(d)
	f.ctrl.Tick(context.Background())
	f.ctrl.inflight.Wait()
}

func (f *controllerFixture) indexOf(payload string) int {
	for i, call := range f.transport.Calls() {
		if call.payload == payload {
			return i
		}
	}
	return -1
}

func (f *controllerFixture) countPrefix(prefix string) int {
	count := 0
	for _, call := range f.transport.Calls() {
		if strings.HasPrefix(call.payload, prefix) {
			count++
		}
	}
	return count
}

func TestNewControllerValidatesDependencies(t *testing.T) {
	_, err := NewController(Options{}, Dependencies{})
	require.Error(t, err)

	pool, err := NewPool([]string{"https://rpc"}, PoolOptions{})
	require.NoError(t, err)
	_, err = NewController(Options{DecoysEnabled: true}, Dependencies{
		Public:  &Dispatcher{Pool: pool, Transport: &fakeTransport{}},
		Limiter: NewLimiter(1),
	})
	require.Error(t, err)
}

func TestControllerReleasesRealAfterFiftyDecoys(t *testing.T) {
	f := newControllerFixture(t, Options{
		Network:          "sepolia",
		Generator:        steadyGenerator(),
		MinDecoysPerReal: 50,
		NoiseRatioTarget: 50,
		DecoysEnabled:    true,
	}, &fakeTransport{}, 3)

	handle, err := f.ctrl.Submit(context.Background(), []byte("real-tx"))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		f.step(time.Second)
	}
	status, ok := f.ctrl.Lookup(handle.ID)
	require.True(t, ok)
	assert.Equal(t, core.RealPending, status.State)
	assert.Equal(t, 50, status.CoverTarget)
	assert.Greater(t, status.CoverSent, 0)
	assert.Less(t, status.CoverSent, 50)

	for i := 0; i < 60 && handle.State() != core.RealSucceeded; i++ {
		f.step(time.Second)
	}

	outcome, err := handle.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, core.KindReal, outcome.Kind)

	realIndex := f.indexOf("real-tx")
	require.GreaterOrEqual(t, realIndex, 50)
	decoysBefore := 0
	for _, call := range f.transport.Calls()[:realIndex] {
		if strings.HasPrefix(call.payload, "decoy-") {
			decoysBefore++
		}
	}
	assert.GreaterOrEqual(t, decoysBefore, 50)

	status, ok = f.ctrl.Lookup(handle.ID)
	require.True(t, ok)
	assert.Equal(t, core.RealSucceeded, status.State)
	assert.Equal(t, 50, status.CoverSent)
	require.NotNil(t, status.ReleasedAt)

	var realRecords int
	for _, record := range f.journal.Records() {
		if record.Kind == core.KindReal {
			realRecords++
			assert.Equal(t, "success", record.Result)
		}
	}
	assert.Equal(t, 1, realRecords)
}

func TestControllerReleasesInSubmissionOrder(t *testing.T) {
	f := newControllerFixture(t, Options{
		Generator:        steadyGenerator(),
		MinDecoysPerReal: 2,
		DecoysEnabled:    true,
	}, &fakeTransport{}, 3)

	first, err := f.ctrl.Submit(context.Background(), []byte("real-a"))
	require.NoError(t, err)
	f.step(time.Second)

	second, err := f.ctrl.Submit(context.Background(), []byte("real-b"))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		f.step(time.Second)
	}

	require.Equal(t, core.RealSucceeded, first.State())
	require.Equal(t, core.RealSucceeded, second.State())
	assert.Less(t, f.indexOf("real-a"), f.indexOf("real-b"))

	a, _ := f.ctrl.Lookup(first.ID)
	b, _ := f.ctrl.Lookup(second.ID)
	require.NotNil(t, a.ReleasedAt)
	require.NotNil(t, b.ReleasedAt)
	assert.True(t, a.ReleasedAt.Before(*b.ReleasedAt))
}

func TestControllerWithoutDecoysHoldsReals(t *testing.T) {
	f := newControllerFixture(t, Options{
		Generator:        steadyGenerator(),
		MinDecoysPerReal: 50,
		DecoysEnabled:    false,
	}, &fakeTransport{}, 3)

	handle, err := f.ctrl.Submit(context.Background(), []byte("real-tx"))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		f.step(time.Second)
	}

	status, ok := f.ctrl.Lookup(handle.ID)
	require.True(t, ok)
	assert.Equal(t, core.RealPending, status.State)
	assert.Equal(t, -1, f.indexOf("real-tx"))
	assert.Equal(t, 0, f.countPrefix("decoy-"))
	assert.Equal(t, 50, f.ctrl.CoverTarget())
}

func TestControllerSubmitRejectsEmptyPayload(t *testing.T) {
	f := newControllerFixture(t, Options{Generator: steadyGenerator()}, &fakeTransport{}, 3)

	_, err := f.ctrl.Submit(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrEmptyPayload)
}

func TestControllerCancelPendingReal(t *testing.T) {
	f := newControllerFixture(t, Options{
		Generator:        steadyGenerator(),
		MinDecoysPerReal: 10,
		DecoysEnabled:    true,
	}, &fakeTransport{}, 3)

	handle, err := f.ctrl.Submit(context.Background(), []byte("real-tx"))
	require.NoError(t, err)

	assert.True(t, f.ctrl.Cancel(handle.ID))
	assert.False(t, f.ctrl.Cancel(handle.ID))

	_, err = handle.Wait(context.Background())
	require.ErrorIs(t, err, core.ErrCancelled)

	for i := 0; i < 15; i++ {
		f.step(time.Second)
	}
	assert.Equal(t, -1, f.indexOf("real-tx"))

	status, ok := f.ctrl.Lookup(handle.ID)
	require.True(t, ok)
	assert.Equal(t, core.RealCancelled, status.State)
}

func TestControllerPauseStopsEmission(t *testing.T) {
	f := newControllerFixture(t, Options{
		Generator:        steadyGenerator(),
		MinDecoysPerReal: 1,
		DecoysEnabled:    true,
	}, &fakeTransport{}, 3)

	f.ctrl.Pause()
	assert.True(t, f.ctrl.Paused())

	handle, err := f.ctrl.Submit(context.Background(), []byte("real-tx"))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		f.step(time.Second)
	}
	assert.Empty(t, f.transport.Calls())
	assert.Equal(t, core.RealPending, handle.State())
	assert.True(t, f.ctrl.Snapshot().Paused)
	assert.Equal(t, string(StateIdle), f.ctrl.Snapshot().State)

	f.ctrl.Resume()
	for i := 0; i < 5 && handle.State() != core.RealSucceeded; i++ {
		f.step(time.Second)
	}
	assert.Equal(t, core.RealSucceeded, handle.State())
}

func TestControllerRequestedStorm(t *testing.T) {
	cfg := steadyGenerator()
	cfg.HeartbeatMin = 500 * time.Millisecond
	cfg.HeartbeatMax = 500 * time.Millisecond
	f := newControllerFixture(t, Options{
		Generator:     cfg,
		DecoysEnabled: true,
	}, &fakeTransport{}, 3)

	require.True(t, f.ctrl.RequestStorm())
	f.step(0)

	storm := f.ctrl.gen.Current()
	require.NotNil(t, storm)
	intensity := storm.Intensity
	assert.Equal(t, StateStormActive, f.ctrl.state)

	for i := 0; i < 200 && f.ctrl.gen.Current() != nil; i++ {
		f.step(100 * time.Millisecond)
	}
	f.step(100 * time.Millisecond)

	stormDecoys := f.countPrefix("decoy-storm-")
	assert.Greater(t, stormDecoys, 0)
	assert.LessOrEqual(t, stormDecoys, intensity)
	assert.GreaterOrEqual(t, stormDecoys, 30/2)
	assert.Equal(t, int64(1), f.ctrl.stormsStarted.Load())
}

func TestControllerHeartbeatSuppressedDuringStorm(t *testing.T) {
	cfg := steadyGenerator()
	cfg.HeartbeatMin = 100 * time.Millisecond
	cfg.HeartbeatMax = 100 * time.Millisecond
	cfg.StormDurationMin = 5 * time.Second
	cfg.StormDurationMax = 5 * time.Second
	f := newControllerFixture(t, Options{Generator: cfg, DecoysEnabled: true}, &fakeTransport{}, 3)

	require.True(t, f.ctrl.RequestStorm())
	f.step(0)
	before := f.countPrefix("decoy-heartbeat-")

	for i := 0; i < 40; i++ {
		f.step(100 * time.Millisecond)
	}
	assert.Equal(t, before, f.countPrefix("decoy-heartbeat-"))
}

func TestControllerStormOnSubmit(t *testing.T) {
	f := newControllerFixture(t, Options{
		Generator:        steadyGenerator(),
		MinDecoysPerReal: 5,
		DecoysEnabled:    true,
		StormOnSubmit:    true,
	}, &fakeTransport{}, 3)

	_, err := f.ctrl.Submit(context.Background(), []byte("real-tx"))
	require.NoError(t, err)
	f.step(0)

	assert.NotNil(t, f.ctrl.gen.Current())
}

func TestControllerFailedDecoysStillCountAsCover(t *testing.T) {
	f := newControllerFixture(t, Options{
		Generator:        steadyGenerator(),
		MinDecoysPerReal: 3,
		DecoysEnabled:    true,
	}, &fakeTransport{failAll: true}, 1000)

	handle, err := f.ctrl.Submit(context.Background(), []byte("real-tx"))
	require.NoError(t, err)

	for i := 0; i < 10 && handle.State() == core.RealPending; i++ {
		f.step(time.Second)
	}
	f.step(0)

	_, err = handle.Wait(context.Background())
	require.ErrorIs(t, err, core.ErrRetriesExhausted)
	assert.Equal(t, int64(1), f.ctrl.realsFailed.Load())
}

func TestControllerUnreachableDecoysAreNotCover(t *testing.T) {
	f := newControllerFixture(t, Options{
		Generator:        steadyGenerator(),
		MinDecoysPerReal: 5,
		DecoysEnabled:    true,
	}, &fakeTransport{failAll: true}, 1)

	handle, err := f.ctrl.Submit(context.Background(), []byte("real-tx"))
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		f.step(time.Second)
	}

	assert.Equal(t, core.RealPending, handle.State())
	assert.Greater(t, f.ctrl.decoysDropped.Load(), int64(0))
	for _, health := range f.ctrl.PublicEndpoints() {
		assert.LessOrEqual(t, health.ConsecutiveFailures, 3*2)
	}
}

func TestControllerForwardBypassesGate(t *testing.T) {
	f := newControllerFixture(t, Options{
		Generator:        steadyGenerator(),
		MinDecoysPerReal: 50,
		DecoysEnabled:    true,
	}, &fakeTransport{}, 3)

	outcome := f.ctrl.Forward(context.Background(), []byte(`{"method":"eth_blockNumber"}`))
	require.True(t, outcome.Succeeded())
	assert.Equal(t, core.KindPassthrough, outcome.Kind)
	assert.Equal(t, 0, f.ctrl.limiter.InFlight())
}

func TestControllerSnapshotRefreshes(t *testing.T) {
	f := newControllerFixture(t, Options{
		Network:          "sepolia",
		Generator:        steadyGenerator(),
		MinDecoysPerReal: 50,
		DecoysEnabled:    true,
		SnapshotInterval: time.Second,
	}, &fakeTransport{}, 3)

	for i := 0; i < 5; i++ {
		f.step(time.Second)
	}
	f.step(time.Second)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, "sepolia", snap.Network)
	assert.Equal(t, 50, snap.CoverTarget)
	assert.Equal(t, 5, snap.MaxConcurrent)
	assert.GreaterOrEqual(t, snap.DecoysEmitted, int64(5))
	assert.Len(t, snap.Endpoints, 2)
	assert.NotEmpty(t, snap.RecentActivity)
	assert.NotNil(t, snap.NextHeartbeatAt)
	assert.LessOrEqual(t, snap.PeakInFlight, snap.MaxConcurrent)
}

func TestControllerRunCancelsPendingOnShutdown(t *testing.T) {
	cfg := steadyGenerator()
	cfg.HeartbeatMin = time.Hour
	cfg.HeartbeatMax = time.Hour

	pool, err := NewPool([]string{"https://rpc"}, PoolOptions{})
	require.NoError(t, err)
	ctrl, err := NewController(Options{
		Generator:        cfg,
		MinDecoysPerReal: 5,
		DecoysEnabled:    true,
		TickInterval:     5 * time.Millisecond,
	}, Dependencies{
		Public:  &Dispatcher{Pool: pool, Transport: &fakeTransport{}, MaxAttempts: 3},
		Limiter: NewLimiter(2),
		Decoys:  &stubDecoys{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	handle, err := ctrl.Submit(context.Background(), []byte("real-tx"))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	_, err = handle.Wait(waitCtx)
	require.ErrorIs(t, err, core.ErrCancelled)

	late, err := ctrl.Submit(context.Background(), []byte("late-tx"))
	require.NoError(t, err)
	assert.Equal(t, core.RealCancelled, late.State())

	require.ErrorIs(t, ctrl.Run(context.Background()), ErrAlreadyRunning)
}

func TestControllerRoutesRealsThroughPrivateRelay(t *testing.T) {
	clock := newFakeClock()
	publicPool, err := NewPool([]string{"https://rpc-public"}, PoolOptions{Clock: clock.Now})
	require.NoError(t, err)
	relayPool, err := NewPool([]string{"https://relay-private"}, PoolOptions{Clock: clock.Now})
	require.NoError(t, err)

	public, relay := &fakeTransport{}, &fakeTransport{}
	ctrl, err := NewController(Options{Generator: steadyGenerator()}, Dependencies{
		Public:  &Dispatcher{Pool: publicPool, Transport: public, MaxAttempts: 2, Timeout: time.Second, Clock: clock.Now},
		Private: &Dispatcher{Pool: relayPool, Transport: relay, MaxAttempts: 2, Timeout: time.Second, Clock: clock.Now},
		Limiter: NewLimiter(2),
		Clock:   clock.Now,
		Rand:    seededRand(),
	})
	require.NoError(t, err)
	ctrl.start(clock.Now())

	handle, err := ctrl.Submit(context.Background(), []byte("real-tx"))
	require.NoError(t, err)
	ctrl.Tick(context.Background())
	ctrl.inflight.Wait()

	outcome, err := handle.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://relay-private", outcome.Endpoint)
	require.Len(t, relay.Calls(), 1)
	assert.Equal(t, "real-tx", relay.Calls()[0].payload)

	forwarded := ctrl.Forward(context.Background(), []byte(`{"method":"eth_chainId"}`))
	assert.Equal(t, "https://rpc-public", forwarded.Endpoint)
	assert.Len(t, public.Calls(), 1)
}
