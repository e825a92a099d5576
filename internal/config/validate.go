package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/decoy"
)

// ErrInvalid marks configuration rejected by Validate.
var ErrInvalid = errors.New("invalid configuration")

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidationError lists every rule a configuration breaks.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) positiveDuration(name string, value time.Duration) {
	if value <= 0 {
		v.addf("%s must be positive", name)
	}
}

func (v *validator) positiveInt(name string, value int) {
	if value <= 0 {
		v.addf("%s must be positive", name)
	}
}

func (v *validator) nonNegativeInt(name string, value int) {
	if value < 0 {
		v.addf("%s must not be negative", name)
	}
}

func (v *validator) durationRange(name string, low, high time.Duration) {
	v.positiveDuration(name+"_min", low)
	v.positiveDuration(name+"_max", high)
	if low > 0 && high > 0 && low > high {
		v.addf("%s_min (%s) must not exceed %s_max (%s)", name, low, name, high)
	}
}

func (v *validator) intRange(name string, low, high int) {
	v.positiveInt(name+"_min", low)
	v.positiveInt(name+"_max", high)
	if low > 0 && high > 0 && low > high {
		v.addf("%s_min (%d) must not exceed %s_max (%d)", name, low, name, high)
	}
}

// Validate enforces the startup rules. A nil error means the engine can be
// built from cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Problems: []string{"config is nil"}}
	}

	v := &validator{}

	m := cfg.Mimicry
	v.positiveDuration("mimicry.tick_interval", m.TickInterval)
	v.durationRange("mimicry.heartbeat", m.HeartbeatMin, m.HeartbeatMax)
	v.positiveInt("mimicry.heartbeat_burst_max", m.HeartbeatBurstMax)
	if m.StormProbability < 0 || m.StormProbability > 100 {
		v.addf("mimicry.storm_probability must be within 0..100, got %d", m.StormProbability)
	}
	v.positiveDuration("mimicry.storm_window", m.StormWindow)
	v.intRange("mimicry.storm_intensity", m.StormIntensityMin, m.StormIntensityMax)
	v.durationRange("mimicry.storm_duration", m.StormDurationMin, m.StormDurationMax)
	if m.StormJitter < 0 || m.StormJitter > 1 {
		v.addf("mimicry.storm_jitter must be within 0..1, got %g", m.StormJitter)
	}
	v.nonNegativeInt("mimicry.noise_ratio_target", m.NoiseRatioTarget)
	v.nonNegativeInt("mimicry.min_decoys_per_real_tx", m.MinDecoysPerReal)

	d := cfg.Dispatch
	v.positiveDuration("dispatch.http_timeout", d.HTTPTimeout)
	v.positiveInt("dispatch.max_retry_attempts", d.MaxRetryAttempts)
	v.positiveInt("dispatch.max_concurrent_requests", d.MaxConcurrentRequests)
	v.positiveInt("dispatch.degraded_threshold", d.DegradedThreshold)
	if d.DegradedCooldown < 0 {
		v.addf("dispatch.degraded_cooldown must not be negative")
	}
	for _, endpoint := range d.PrivateEndpoints {
		if strings.TrimSpace(endpoint) == "" {
			continue
		}
		if err := core.ValidateEndpointURL(endpoint); err != nil {
			v.addf("dispatch.private_endpoints: %v", err)
		}
	}

	for i, contract := range cfg.Decoys.Contracts {
		if !addressPattern.MatchString(strings.TrimSpace(contract.Address)) {
			v.addf("decoys.contracts[%d]: invalid address %q", i, contract.Address)
		}
		if category := strings.TrimSpace(contract.Category); category != "" && !knownCategory(category) {
			v.addf("decoys.contracts[%d]: unknown category %q", i, category)
		}
	}

	v.positiveDuration("dashboard.refresh_interval", cfg.Dashboard.RefreshInterval)
	v.nonNegativeInt("dashboard.activity_limit", cfg.Dashboard.ActivityLimit)

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		v.addf("server.port must be within 0..65535, got %d", cfg.Server.Port)
	}
	v.positiveDuration("server.wait_timeout", cfg.Server.WaitTimeout)
	if cfg.Journal.Retention < 0 {
		v.addf("journal.retention must not be negative")
	}

	if _, err := cfg.ResolveNetwork(); err != nil {
		v.addf("network: %v", err)
	}

	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

func knownCategory(value string) bool {
	for _, category := range decoy.Categories() {
		if string(category) == strings.ToLower(value) {
			return true
		}
	}
	return false
}

// DecoyContracts returns the built-in contracts for the selected network plus
// configured ones.
func (c *Config) DecoyContracts() []decoy.Contract {
	contracts := decoy.KnownContracts(c.Network)
	for _, contract := range c.Decoys.Contracts {
		contracts = append(contracts, decoy.Contract{
			Address:  strings.TrimSpace(contract.Address),
			Name:     strings.TrimSpace(contract.Name),
			Category: decoy.Category(strings.ToLower(strings.TrimSpace(contract.Category))),
		})
	}
	return contracts
}
