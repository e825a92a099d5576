package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ghostpni/ghostpni/internal/core"
)

// DecoyBudgetCounter counts cover decoys sent on behalf of one pending real.
type DecoyBudgetCounter struct {
	Sent   int
	Target int
}

// Met reports whether the real may be released.
func (c DecoyBudgetCounter) Met() bool {
	return c.Sent >= c.Target
}

// PendingReal is a queued real transaction waiting for cover.
type PendingReal struct {
	ID          string
	Payload     []byte
	SubmittedAt time.Time
	Counter     DecoyBudgetCounter
	Handle      *Handle

	// openedAt is the emission sequence at submission. Only decoys emitted
	// after it are credited.
	openedAt uint64
}

// Gate holds real transactions until enough decoys have been dispatched.
// The gate never fails; it only delays.
type Gate struct {
	mu      sync.Mutex
	target  int
	emitted uint64
	queue   []*PendingReal
}

// CoverTarget computes the per-real decoy target.
func CoverTarget(minDecoysPerReal, noiseRatioTarget int) int {
	target := minDecoysPerReal
	if noiseRatioTarget > target {
		target = noiseRatioTarget
	}
	if target < 0 {
		target = 0
	}
	return target
}

// NewGate returns a gate releasing reals after target decoys.
func NewGate(target int) *Gate {
	if target < 0 {
		target = 0
	}
	return &Gate{target: target}
}

// Target returns the per-real decoy target.
func (g *Gate) Target() int {
	return g.target
}

// Submit queues a real transaction with a fresh counter.
func (g *Gate) Submit(pending *PendingReal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pending.Counter = DecoyBudgetCounter{Target: g.target}
	pending.openedAt = g.emitted
	g.queue = append(g.queue, pending)
}

// MarkEmitted assigns the next emission sequence number to a decoy.
func (g *Gate) MarkEmitted() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.emitted++
	return g.emitted
}

// Credit increments every live counter opened before the given emission.
func (g *Gate) Credit(emission uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, pending := range g.queue {
		if pending.openedAt < emission {
			pending.Counter.Sent++
		}
	}
}

// PollReleasable removes and returns the oldest real whose counter met its
// target.
func (g *Gate) PollReleasable() (*PendingReal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, pending := range g.queue {
		if pending.Counter.Met() {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			return pending, true
		}
	}
	return nil, false
}

// Cancel removes a pending real by ID.
func (g *Gate) Cancel(id string) (*PendingReal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, pending := range g.queue {
		if pending.ID == id {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			return pending, true
		}
	}
	return nil, false
}

// Lookup returns a copy of a pending real's counter.
func (g *Gate) Lookup(id string) (DecoyBudgetCounter, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, pending := range g.queue {
		if pending.ID == id {
			return pending.Counter, true
		}
	}
	return DecoyBudgetCounter{}, false
}

// Pending returns the number of queued reals.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Drain removes every queued real.
func (g *Gate) Drain() []*PendingReal {
	g.mu.Lock()
	defer g.mu.Unlock()

	drained := g.queue
	g.queue = nil
	return drained
}

// Handle is the submitter's future for a real transaction.
type Handle struct {
	ID          string
	SubmittedAt time.Time

	mu         sync.Mutex
	state      core.RealState
	releasedAt *time.Time
	cover      DecoyBudgetCounter
	outcome    core.Outcome
	done       chan struct{}
	once       sync.Once
}

func newHandle(id string, submittedAt time.Time) *Handle {
	return &Handle{
		ID:          id,
		SubmittedAt: submittedAt,
		state:       core.RealPending,
		done:        make(chan struct{}),
	}
}

// Done is closed once the outcome is known.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the outcome is known or ctx is done. A failed dispatch
// returns the outcome together with its *core.DispatchError.
func (h *Handle) Wait(ctx context.Context) (core.Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-h.done:
		outcome := h.Outcome()
		return outcome, outcome.Err()
	case <-ctx.Done():
		return core.Outcome{}, ctx.Err()
	}
}

// Outcome returns the resolved outcome (zero value while pending).
func (h *Handle) Outcome() core.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// State returns the current lifecycle state.
func (h *Handle) State() core.RealState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) markDispatching(at time.Time, cover DecoyBudgetCounter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == core.RealPending {
		h.state = core.RealDispatching
		h.releasedAt = &at
		h.cover = cover
	}
}

func (h *Handle) resolve(outcome core.Outcome) {
	h.once.Do(func() {
		h.mu.Lock()
		h.outcome = outcome
		switch {
		case outcome.Succeeded():
			h.state = core.RealSucceeded
		case outcome.Failure == core.FailureCancelled:
			h.state = core.RealCancelled
		default:
			h.state = core.RealFailed
		}
		h.mu.Unlock()
		close(h.done)
	})
}

// status reports the handle state. A nil counter means the real has left
// the gate and its last known counter is used.
func (h *Handle) status(counter *DecoyBudgetCounter) core.RealStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	cover := h.cover
	if counter != nil {
		cover = *counter
	}

	status := core.RealStatus{
		ID:          h.ID,
		State:       h.state,
		SubmittedAt: h.SubmittedAt,
		ReleasedAt:  h.releasedAt,
		CoverSent:   cover.Sent,
		CoverTarget: cover.Target,
		Failure:     h.outcome.Failure,
		Attempts:    h.outcome.Attempts,
		Endpoint:    h.outcome.Endpoint,
	}
	if h.outcome.Response != nil {
		status.StatusCode = h.outcome.Response.StatusCode
	}
	return status
}
