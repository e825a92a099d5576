package engine

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ghostpni/ghostpni/internal/core"
)

// PoolOptions tune endpoint health tracking.
type PoolOptions struct {
	// DegradedThreshold is the failure count above which an endpoint is
	// skipped. An endpoint with failures <= threshold is eligible.
	DegradedThreshold int
	// DegradedCooldown re-admits a degraded endpoint for a probe once this
	// long has passed since its last failure. Zero disables probing.
	DegradedCooldown time.Duration
	// FailureCeiling saturates consecutive failure counts. Zero derives it
	// from the threshold and the number of endpoints.
	FailureCeiling int
	Clock          func() time.Time
}

type endpointState struct {
	url           string
	failures      int
	lastUsed      time.Time
	lastFailure   time.Time
	backoffUntil  time.Time
	totalSuccess  int64
	totalFailures int64
}

// Pool is the ordered endpoint set for one network plus its health state.
// It is safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpointState
	threshold int
	cooldown  time.Duration
	ceiling   int
	clock     func() time.Time
}

// NewPool builds a pool from a non-empty URL list. Duplicate URLs are dropped.
func NewPool(urls []string, opts PoolOptions) (*Pool, error) {
	seen := make(map[string]struct{}, len(urls))
	endpoints := make([]*endpointState, 0, len(urls))
	for _, raw := range urls {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		endpoints = append(endpoints, &endpointState{url: value})
	}
	if len(endpoints) == 0 {
		return nil, errors.New("endpoint pool requires at least one endpoint")
	}

	threshold := opts.DegradedThreshold
	if threshold <= 0 {
		threshold = 3
	}
	ceiling := opts.FailureCeiling
	if ceiling <= 0 {
		ceiling = threshold * len(endpoints)
	}
	if ceiling <= threshold {
		ceiling = threshold + 1
	}

	return &Pool{
		endpoints: endpoints,
		threshold: threshold,
		cooldown:  opts.DegradedCooldown,
		ceiling:   ceiling,
		clock:     opts.Clock,
	}, nil
}

// Select picks the eligible endpoint with the fewest consecutive failures,
// breaking ties by least recent use. The excluded URL is skipped unless it is
// the only eligible endpoint. The chosen endpoint is marked as used.
func (p *Pool) Select(exclude string) (string, error) {
	return p.selectWhere(exclude, true)
}

// Fallback is Select without the degraded filter. Dispatches that have
// already started use it to spend their remaining attempts on the
// least-failed endpoint.
func (p *Pool) Fallback(exclude string) (string, error) {
	return p.selectWhere(exclude, false)
}

func (p *Pool) selectWhere(exclude string, eligibleOnly bool) (string, error) {
	if p == nil {
		return "", core.ErrAllEndpointsDown
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	candidates := make([]*endpointState, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if !eligibleOnly || p.eligible(ep, now) {
			candidates = append(candidates, ep)
		}
	}
	if len(candidates) == 0 {
		return "", core.ErrAllEndpointsDown
	}

	if exclude != "" && len(candidates) > 1 {
		filtered := candidates[:0]
		for _, ep := range candidates {
			if ep.url != exclude {
				filtered = append(filtered, ep)
			}
		}
		candidates = filtered
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		aBackoff := now.Before(a.backoffUntil)
		bBackoff := now.Before(b.backoffUntil)
		if aBackoff != bBackoff {
			return !aBackoff
		}
		if a.failures != b.failures {
			return a.failures < b.failures
		}
		return a.lastUsed.Before(b.lastUsed)
	})

	chosen := candidates[0]
	chosen.lastUsed = now
	return chosen.url, nil
}

// AllDegraded reports whether no endpoint is currently eligible.
func (p *Pool) AllDegraded() bool {
	if p == nil {
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, ep := range p.endpoints {
		if p.eligible(ep, now) {
			return false
		}
	}
	return true
}

// RecordSuccess resets the endpoint's failure count.
func (p *Pool) RecordSuccess(url string) {
	p.update(url, func(ep *endpointState, _ time.Time) {
		ep.failures = 0
		ep.backoffUntil = time.Time{}
		ep.totalSuccess++
	})
}

// RecordFailure increments the endpoint's failure count.
func (p *Pool) RecordFailure(url string) {
	p.update(url, func(ep *endpointState, now time.Time) {
		if ep.failures < p.ceiling {
			ep.failures++
		}
		ep.lastFailure = now
		ep.totalFailures++
	})
}

// Backoff deprioritizes an endpoint until the given time (HTTP 429).
func (p *Pool) Backoff(url string, until time.Time) {
	p.update(url, func(ep *endpointState, _ time.Time) {
		if until.After(ep.backoffUntil) {
			ep.backoffUntil = until
		}
	})
}

// Len returns the number of endpoints.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.endpoints)
}

// URLs returns the endpoint URLs in configured order.
func (p *Pool) URLs() []string {
	if p == nil {
		return nil
	}
	urls := make([]string, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		urls = append(urls, ep.url)
	}
	return urls
}

// Health returns a copy of every endpoint's state.
func (p *Pool) Health() []core.EndpointHealth {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	health := make([]core.EndpointHealth, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		entry := core.EndpointHealth{
			URL:                 ep.url,
			ConsecutiveFailures: ep.failures,
			TotalSuccesses:      ep.totalSuccess,
			TotalFailures:       ep.totalFailures,
			Degraded:            ep.failures > p.threshold,
		}
		if !ep.lastUsed.IsZero() {
			value := ep.lastUsed
			entry.LastUsedAt = &value
		}
		if !ep.lastFailure.IsZero() {
			value := ep.lastFailure
			entry.LastFailureAt = &value
		}
		if now.Before(ep.backoffUntil) {
			value := ep.backoffUntil
			entry.BackoffUntil = &value
		}
		health = append(health, entry)
	}
	return health
}

func (p *Pool) eligible(ep *endpointState, now time.Time) bool {
	if ep.failures <= p.threshold {
		return true
	}
	return p.cooldown > 0 && now.Sub(ep.lastFailure) >= p.cooldown
}

func (p *Pool) update(url string, fn func(ep *endpointState, now time.Time)) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, ep := range p.endpoints {
		if ep.url == url {
			fn(ep, now)
			return
		}
	}
}

func (p *Pool) now() time.Time {
	if p != nil && p.clock != nil {
		return p.clock()
	}
	return time.Now().UTC()
}
