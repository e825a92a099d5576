package engine

import (
	"math/rand/v2"
	"time"
)

// GeneratorConfig holds the randomized decoy schedule bounds.
type GeneratorConfig struct {
	HeartbeatMin      time.Duration
	HeartbeatMax      time.Duration
	HeartbeatBurstMax int
	// StormProbability is the per-window chance, in percent, that a storm starts.
	StormProbability  int
	StormWindow       time.Duration
	StormIntensityMin int
	StormIntensityMax int
	StormDurationMin  time.Duration
	StormDurationMax  time.Duration
	// StormJitter is the fraction of the even spacing applied as +/- jitter.
	StormJitter float64
}

// DefaultGeneratorConfig mirrors the firmware defaults.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		HeartbeatMin:      5 * time.Second,
		HeartbeatMax:      45 * time.Second,
		HeartbeatBurstMax: 1,
		StormProbability:  30,
		StormWindow:       time.Minute,
		StormIntensityMin: 30,
		StormIntensityMax: 80,
		StormDurationMin:  2 * time.Second,
		StormDurationMax:  8 * time.Second,
		StormJitter:       0.5,
	}
}

// StormState exists only while a storm is in progress.
type StormState struct {
	StartedAt time.Time
	EndsAt    time.Time
	Duration  time.Duration
	Intensity int
	Emitted   int
	Remaining int

	spacing time.Duration
	next    time.Time
}

// NextEmission returns when the next storm decoy is due.
func (s *StormState) NextEmission() time.Time {
	return s.next
}

// Generator decides when and how many decoys to emit. It is owned by a single
// scheduling goroutine and is not safe for concurrent use.
type Generator struct {
	cfg   GeneratorConfig
	rng   *rand.Rand
	storm *StormState
}

// NewGenerator returns a generator drawing from rng. A nil rng uses a
// randomly seeded source.
func NewGenerator(cfg GeneratorConfig, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.StormWindow <= 0 {
		cfg.StormWindow = time.Minute
	}
	if cfg.HeartbeatBurstMax <= 0 {
		cfg.HeartbeatBurstMax = 1
	}
	if cfg.StormJitter < 0 {
		cfg.StormJitter = 0
	}
	if cfg.StormJitter > 1 {
		cfg.StormJitter = 1
	}
	return &Generator{cfg: cfg, rng: rng}
}

// Config returns the effective configuration.
func (g *Generator) Config() GeneratorConfig {
	return g.cfg
}

// NextHeartbeatDelay draws uniformly from [HeartbeatMin, HeartbeatMax].
func (g *Generator) NextHeartbeatDelay() time.Duration {
	return g.uniformDuration(g.cfg.HeartbeatMin, g.cfg.HeartbeatMax)
}

// HeartbeatBurst draws the number of decoys for one heartbeat fire.
func (g *Generator) HeartbeatBurst() int {
	return 1 + g.rng.IntN(g.cfg.HeartbeatBurstMax)
}

// ShouldStartStorm rolls the storm probability once for the current window.
// It returns false without rolling while a storm is active.
func (g *Generator) ShouldStartStorm(now time.Time) (*StormState, bool) {
	if g.Active(now) != nil {
		return nil, false
	}
	if g.cfg.StormProbability <= 0 {
		return nil, false
	}
	if g.rng.IntN(100) >= g.cfg.StormProbability {
		return nil, false
	}
	return g.start(now), true
}

// StartStorm begins a storm unconditionally unless one is already active,
// in which case the request is ignored.
func (g *Generator) StartStorm(now time.Time) (*StormState, bool) {
	if g.Active(now) != nil {
		return nil, false
	}
	return g.start(now), true
}

// Active returns the storm in progress, ending it first if its duration has
// elapsed or its quota is spent.
func (g *Generator) Active(now time.Time) *StormState {
	if g.storm == nil {
		return nil
	}
	if g.storm.Remaining <= 0 || !now.Before(g.storm.EndsAt) {
		g.storm = nil
		return nil
	}
	return g.storm
}

// Current returns the storm in progress without checking expiry.
func (g *Generator) Current() *StormState {
	return g.storm
}

// StormDue returns how many storm decoys are due at now and advances the
// emission schedule past them.
func (g *Generator) StormDue(now time.Time) int {
	storm := g.storm
	if storm == nil {
		return 0
	}

	due := 0
	for storm.Remaining > 0 && !now.Before(storm.next) && storm.next.Before(storm.EndsAt) {
		due++
		storm.Remaining--
		storm.Emitted++
		storm.next = storm.next.Add(g.jitter(storm.spacing))
	}

	if storm.Remaining <= 0 || !storm.next.Before(storm.EndsAt) {
		g.storm = nil
	}
	return due
}

func (g *Generator) start(now time.Time) *StormState {
	intensity := g.uniformInt(g.cfg.StormIntensityMin, g.cfg.StormIntensityMax)
	if intensity < 1 {
		intensity = 1
	}
	duration := g.uniformDuration(g.cfg.StormDurationMin, g.cfg.StormDurationMax)
	if duration <= 0 {
		duration = time.Millisecond
	}

	g.storm = &StormState{
		StartedAt: now,
		EndsAt:    now.Add(duration),
		Duration:  duration,
		Intensity: intensity,
		Remaining: intensity,
		spacing:   duration / time.Duration(intensity),
		next:      now,
	}
	return g.storm
}

func (g *Generator) jitter(spacing time.Duration) time.Duration {
	if spacing <= 0 {
		return time.Nanosecond
	}
	if g.cfg.StormJitter == 0 {
		return spacing
	}
	factor := 1 + g.cfg.StormJitter*(2*g.rng.Float64()-1)
	jittered := time.Duration(float64(spacing) * factor)
	if jittered <= 0 {
		return time.Nanosecond
	}
	return jittered
}

func (g *Generator) uniformDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(g.rng.Int64N(int64(hi-lo)+1))
}

func (g *Generator) uniformInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.IntN(hi-lo+1)
}
