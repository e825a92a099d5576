package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/metrics"
)

// State is the controller's scheduling phase.
type State string

const (
	StateIdle          State = "idle"
	StateHeartbeatWait State = "heartbeat_wait"
	StateFiring        State = "firing"
	StateStormActive   State = "storm_active"
)

const (
	defaultTickInterval     = 100 * time.Millisecond
	defaultSnapshotInterval = 5 * time.Second
	defaultActivityLimit    = 20
	defaultHistoryLimit     = 256
	completionBuffer        = 4096
	journalWriteTimeout     = 2 * time.Second
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("controller already running")

// DecoySource builds decoy payloads.
type DecoySource interface {
	Build(source core.Source) ([]byte, error)
}

// Journal persists dispatch outcomes.
type Journal interface {
	RecordDispatch(ctx context.Context, record core.DispatchRecord) error
}

// Options configure the mimicry controller.
type Options struct {
	Network          string
	Generator        GeneratorConfig
	MinDecoysPerReal int
	NoiseRatioTarget int
	DecoysEnabled    bool
	// StormOnSubmit requests a storm whenever a real is queued.
	StormOnSubmit    bool
	TickInterval     time.Duration
	SnapshotInterval time.Duration
	ActivityLimit    int
	// HistoryLimit caps how many resolved handles stay visible to Lookup.
	HistoryLimit int
}

// Dependencies are the collaborators the controller drives.
type Dependencies struct {
	Public *Dispatcher
	// Private carries real transactions when set; Public otherwise.
	Private *Dispatcher
	Limiter *Limiter
	Decoys  DecoySource
	Journal Journal
	Logger  *logging.Logger
	Clock   func() time.Time
	Rand    *rand.Rand
}

type completion struct {
	emission uint64
	outcome  core.Outcome
}

// Controller owns the decoy schedule, the anonymization gate and the
// dispatch of every outbound request. A single goroutine advances the
// schedule through Tick; Submit, Cancel, Lookup, Forward and Snapshot are
// safe to call from any goroutine.
type Controller struct {
	opts    Options
	public  *Dispatcher
	private *Dispatcher
	limiter *Limiter
	decoys  DecoySource
	journal Journal
	logger  *logging.Logger
	clock   func() time.Time

	gen         *Generator
	gate        *Gate
	timers      schedule
	state       State
	startedAt   time.Time
	completions chan completion
	inflight    sync.WaitGroup

	paused         atomic.Bool
	stormRequested atomic.Bool
	running        atomic.Bool

	decoysEmitted   atomic.Int64
	decoysCompleted atomic.Int64
	decoysDropped   atomic.Int64
	stormsStarted   atomic.Int64
	realsSubmitted  atomic.Int64
	realsReleased   atomic.Int64
	realsFailed     atomic.Int64

	mu       sync.Mutex
	stopped  bool
	handles  map[string]*Handle
	history  []string
	activity []core.ActivityEntry
	snapshot core.Snapshot
}

// NewController wires a controller. Public, Limiter and Decoys are required.
func NewController(opts Options, deps Dependencies) (*Controller, error) {
	if deps.Public == nil {
		return nil, errors.New("public dispatcher is required")
	}
	if deps.Limiter == nil {
		return nil, errors.New("concurrency limiter is required")
	}
	if deps.Decoys == nil && opts.DecoysEnabled {
		return nil, errors.New("decoy source is required when decoys are enabled")
	}

	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = defaultSnapshotInterval
	}
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = defaultActivityLimit
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}

	c := &Controller{
		opts:        opts,
		public:      deps.Public,
		private:     deps.Private,
		limiter:     deps.Limiter,
		decoys:      deps.Decoys,
		journal:     deps.Journal,
		logger:      deps.Logger,
		clock:       deps.Clock,
		gen:         NewGenerator(opts.Generator, deps.Rand),
		gate:        NewGate(CoverTarget(opts.MinDecoysPerReal, opts.NoiseRatioTarget)),
		state:       StateIdle,
		completions: make(chan completion, completionBuffer),
		handles:     make(map[string]*Handle),
	}
	c.snapshot = c.buildSnapshot(c.now())
	return c, nil
}

// Run drives the schedule until ctx is done, then waits for in-flight
// dispatches and resolves every pending real as cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	c.start(c.now())
	if c.logger != nil {
		c.logger.Info("Mimicry controller started",
			zap.String("network", c.opts.Network),
			zap.Bool("decoys_enabled", c.opts.DecoysEnabled),
			zap.Int("cover_target", c.gate.Target()),
			zap.Int("max_concurrent", c.limiter.Capacity()))
		if !c.opts.DecoysEnabled {
			c.logger.Warn("Decoys disabled: submitted transactions stay queued and will not be released")
		}
	}

	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// start schedules the first timers.
func (c *Controller) start(now time.Time) {
	c.startedAt = now
	if c.opts.DecoysEnabled {
		c.timers.push(timerHeartbeat, now.Add(c.gen.NextHeartbeatDelay()))
		c.timers.push(timerStormWindow, now.Add(c.gen.Config().StormWindow))
		c.state = StateHeartbeatWait
	}
	c.timers.push(timerSnapshot, now)
}

// Tick advances the schedule by one step: it folds completed dispatches into
// the gate, fires due timers and releases reals whose cover is complete.
func (c *Controller) Tick(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	now := c.now()

	c.drainCompletions(now)

	if c.paused.Load() {
		c.state = StateIdle
		c.fireSnapshot(now)
		return
	}

	if c.stormRequested.Swap(false) && c.opts.DecoysEnabled {
		if storm, ok := c.gen.StartStorm(now); ok {
			c.onStormStarted(storm, "requested")
		}
	}

	for {
		timer, ok := c.timers.popDue(now)
		if !ok {
			break
		}

		switch timer.kind {
		case timerStormWindow:
			if storm, started := c.gen.ShouldStartStorm(now); started {
				c.onStormStarted(storm, "scheduled")
			}
			next := timer.at.Add(c.gen.Config().StormWindow)
			if !next.After(now) {
				next = now.Add(c.gen.Config().StormWindow)
			}
			c.timers.push(timerStormWindow, next)

		case timerHeartbeat:
			if storm := c.gen.Active(now); storm != nil {
				c.timers.push(timerHeartbeat, storm.EndsAt.Add(c.gen.NextHeartbeatDelay()))
				continue
			}
			c.state = StateFiring
			burst := c.gen.HeartbeatBurst()
			for i := 0; i < burst; i++ {
				if !c.emitDecoy(ctx, core.SourceHeartbeat) {
					break
				}
			}
			c.timers.push(timerHeartbeat, now.Add(c.gen.NextHeartbeatDelay()))

		case timerStormEmission:
			if c.gen.Active(now) == nil {
				continue
			}
			c.state = StateFiring
			due := c.gen.StormDue(now)
			for i := 0; i < due; i++ {
				if !c.emitDecoy(ctx, core.SourceStorm) {
					break
				}
			}
			if storm := c.gen.Current(); storm != nil {
				c.timers.push(timerStormEmission, storm.NextEmission())
			}

		case timerSnapshot:
			c.timers.push(timerSnapshot, now.Add(c.opts.SnapshotInterval))
			c.refreshSnapshot(now)
		}
	}

	c.releaseReals(ctx, now)
	c.settleState(now)
}

// Submit queues a real transaction behind the gate.
func (c *Controller) Submit(ctx context.Context, payload []byte) (*Handle, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if len(payload) == 0 {
		return nil, core.ErrEmptyPayload
	}

	now := c.now()
	handle := newHandle(uuid.New().String(), now)
	pending := &PendingReal{
		ID:          handle.ID,
		Payload:     append([]byte(nil), payload...),
		SubmittedAt: now,
		Handle:      handle,
	}

	c.mu.Lock()
	c.track(handle)
	if c.stopped {
		c.mu.Unlock()
		handle.resolve(cancelledOutcome(handle.ID, errors.New("controller stopped")))
		return handle, nil
	}
	c.gate.Submit(pending)
	c.mu.Unlock()

	c.realsSubmitted.Inc()
	metrics.RecordRealSubmitted()
	metrics.SetPendingReals(c.gate.Pending())

	if c.opts.StormOnSubmit {
		c.stormRequested.Store(true)
	}

	if c.logger != nil {
		c.logger.Info("Real transaction queued",
			zap.String("id", handle.ID),
			zap.Int("cover_target", c.gate.Target()),
			zap.Int("pending", c.gate.Pending()))
	}
	return handle, nil
}

// Cancel withdraws a real that has not been released yet.
func (c *Controller) Cancel(id string) bool {
	pending, ok := c.gate.Cancel(id)
	if !ok {
		return false
	}
	pending.Handle.resolve(cancelledOutcome(id, errors.New("cancelled by caller")))
	metrics.RecordRealOutcome(core.ResultLabel(pending.Handle.Outcome()))
	metrics.SetPendingReals(c.gate.Pending())
	c.appendActivity(core.ActivityEntry{
		At:     c.now(),
		Kind:   core.KindReal,
		Source: core.SourceReal,
		Result: string(core.FailureCancelled),
	})
	return true
}

// Lookup returns the status of a submitted real.
func (c *Controller) Lookup(id string) (core.RealStatus, bool) {
	c.mu.Lock()
	handle, ok := c.handles[id]
	c.mu.Unlock()
	if !ok {
		return core.RealStatus{}, false
	}

	if counter, pending := c.gate.Lookup(id); pending {
		return handle.status(&counter), true
	}
	return handle.status(nil), true
}

// Forward dispatches a non-sensitive payload immediately, outside the gate.
func (c *Controller) Forward(ctx context.Context, payload []byte) core.Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	req := &core.DispatchRequest{
		ID:      uuid.New().String(),
		Kind:    core.KindPassthrough,
		Source:  core.SourceProxy,
		Payload: payload,
	}

	slot, err := c.limiter.Acquire(ctx)
	if err != nil {
		outcome := cancelledOutcome(req.ID, err)
		outcome.Kind = req.Kind
		outcome.Source = req.Source
		return outcome
	}
	outcome := c.public.Dispatch(ctx, req)
	slot.Release()

	c.record(outcome)
	c.appendActivity(activityFor(c.now(), outcome))
	return outcome
}

// Pause stops decoy emission and real release. In-flight dispatches finish.
func (c *Controller) Pause() {
	if c.paused.CompareAndSwap(false, true) && c.logger != nil {
		c.logger.Info("Mimicry controller paused")
	}
}

// Resume restarts a paused controller.
func (c *Controller) Resume() {
	if c.paused.CompareAndSwap(true, false) && c.logger != nil {
		c.logger.Info("Mimicry controller resumed")
	}
}

// Paused reports whether the controller is paused.
func (c *Controller) Paused() bool {
	return c.paused.Load()
}

// RequestStorm asks for a storm on the next tick. It reports false when
// decoys are disabled.
func (c *Controller) RequestStorm() bool {
	if !c.opts.DecoysEnabled {
		return false
	}
	c.stormRequested.Store(true)
	return true
}

// CoverTarget returns the per-real decoy target.
func (c *Controller) CoverTarget() int {
	return c.gate.Target()
}

// Snapshot returns the most recently published view.
func (c *Controller) Snapshot() core.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// PublicEndpoints returns the public pool health.
func (c *Controller) PublicEndpoints() []core.EndpointHealth {
	return c.public.Pool.Health()
}

// emitDecoy dispatches one decoy. It returns false when ctx is done.
func (c *Controller) emitDecoy(ctx context.Context, source core.Source) bool {
	payload, err := c.decoys.Build(source)
	if err != nil {
		c.decoysDropped.Inc()
		metrics.RecordDecoyDropped("build_failed")
		if c.logger != nil {
			c.logger.Warn("Decoy build failed", zap.String("source", string(source)), zap.Error(err))
		}
		return true
	}

	slot, err := c.limiter.Acquire(ctx)
	if err != nil {
		return false
	}

	emission := c.gate.MarkEmitted()
	c.decoysEmitted.Inc()
	metrics.RecordDecoyEmitted(string(source))

	req := &core.DispatchRequest{
		ID:      uuid.New().String(),
		Kind:    core.KindDecoy,
		Source:  source,
		Payload: payload,
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		outcome := c.public.Dispatch(ctx, req)
		slot.Release()
		c.record(outcome)
		c.complete(ctx, completion{emission: emission, outcome: outcome})
	}()
	return true
}

func (c *Controller) releaseReals(ctx context.Context, now time.Time) {
	for ctx.Err() == nil {
		pending, ok := c.gate.PollReleasable()
		if !ok {
			return
		}

		slot, err := c.limiter.Acquire(ctx)
		if err != nil {
			pending.Handle.resolve(cancelledOutcome(pending.ID, err))
			return
		}

		pending.Handle.markDispatching(now, pending.Counter)
		c.realsReleased.Inc()
		metrics.RecordRealReleased(now.Sub(pending.SubmittedAt))
		metrics.SetPendingReals(c.gate.Pending())
		if c.logger != nil {
			c.logger.Info("Real transaction released",
				zap.String("id", pending.ID),
				zap.Int("cover_sent", pending.Counter.Sent),
				zap.Duration("waited", now.Sub(pending.SubmittedAt)))
		}

		dispatcher := c.public
		if c.private != nil {
			dispatcher = c.private
		}
		req := &core.DispatchRequest{
			ID:      pending.ID,
			Kind:    core.KindReal,
			Source:  core.SourceReal,
			Payload: pending.Payload,
		}

		c.inflight.Add(1)
		go func(pending *PendingReal) {
			defer c.inflight.Done()
			outcome := dispatcher.Dispatch(ctx, req)
			slot.Release()
			pending.Handle.resolve(outcome)
			c.record(outcome)
			c.complete(ctx, completion{outcome: outcome})
		}(pending)
	}
}

func (c *Controller) complete(ctx context.Context, event completion) {
	select {
	case c.completions <- event:
	case <-ctx.Done():
	}
}

func (c *Controller) drainCompletions(now time.Time) {
	for {
		select {
		case event := <-c.completions:
			c.handleCompletion(now, event)
		default:
			return
		}
	}
}

func (c *Controller) handleCompletion(now time.Time, event completion) {
	outcome := event.outcome
	switch outcome.Kind {
	case core.KindDecoy:
		if outcome.Attempts > 0 && outcome.Failure != core.FailureCancelled {
			c.gate.Credit(event.emission)
			c.decoysCompleted.Inc()
		} else {
			c.decoysDropped.Inc()
			metrics.RecordDecoyDropped(core.ResultLabel(outcome))
		}
		if outcome.Failure != core.FailureNone && c.logger != nil {
			c.logger.Debug("Decoy dispatch failed",
				zap.String("request_id", outcome.RequestID),
				zap.String("failure", string(outcome.Failure)),
				zap.Int("attempts", outcome.Attempts))
		}
	case core.KindReal:
		metrics.RecordRealOutcome(core.ResultLabel(outcome))
		if !outcome.Succeeded() {
			c.realsFailed.Inc()
			if c.logger != nil {
				c.logger.Warn("Real transaction failed",
					zap.String("id", outcome.RequestID),
					zap.String("failure", string(outcome.Failure)),
					zap.Int("attempts", outcome.Attempts),
					zap.Error(outcome.LastError))
			}
		} else if c.logger != nil {
			c.logger.Info("Real transaction dispatched",
				zap.String("id", outcome.RequestID),
				zap.String("endpoint", outcome.Endpoint),
				zap.Int("attempts", outcome.Attempts))
		}
	}
	c.appendActivity(activityFor(now, outcome))
}

func (c *Controller) onStormStarted(storm *StormState, trigger string) {
	c.stormsStarted.Inc()
	metrics.RecordStormStarted(trigger)
	c.timers.remove(timerStormEmission)
	c.timers.push(timerStormEmission, storm.NextEmission())
	if c.logger != nil {
		c.logger.Info("Storm started",
			zap.String("trigger", trigger),
			zap.Int("intensity", storm.Intensity),
			zap.Duration("duration", storm.Duration))
	}
}

func (c *Controller) settleState(now time.Time) {
	switch {
	case !c.opts.DecoysEnabled:
		c.state = StateIdle
	case c.gen.Active(now) != nil:
		c.state = StateStormActive
	default:
		c.state = StateHeartbeatWait
	}
}

func (c *Controller) fireSnapshot(now time.Time) {
	for {
		at, ok := c.timers.next(timerSnapshot)
		if !ok || at.After(now) {
			return
		}
		c.timers.remove(timerSnapshot)
		c.timers.push(timerSnapshot, now.Add(c.opts.SnapshotInterval))
		c.refreshSnapshot(now)
	}
}

func (c *Controller) refreshSnapshot(now time.Time) {
	snap := c.buildSnapshot(now)
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
}

func (c *Controller) buildSnapshot(now time.Time) core.Snapshot {
	snap := core.Snapshot{
		Network:         c.opts.Network,
		State:           string(c.state),
		Paused:          c.paused.Load(),
		DecoysEnabled:   c.opts.DecoysEnabled,
		DecoysEmitted:   c.decoysEmitted.Load(),
		DecoysCompleted: c.decoysCompleted.Load(),
		DecoysDropped:   c.decoysDropped.Load(),
		StormsStarted:   c.stormsStarted.Load(),
		RealsSubmitted:  c.realsSubmitted.Load(),
		RealsReleased:   c.realsReleased.Load(),
		RealsFailed:     c.realsFailed.Load(),
		PendingReals:    c.gate.Pending(),
		CoverTarget:     c.gate.Target(),
		InFlight:        c.limiter.InFlight(),
		PeakInFlight:    c.limiter.Peak(),
		MaxConcurrent:   c.limiter.Capacity(),
		Endpoints:       c.public.Pool.Health(),
		StartedAt:       c.startedAt,
		GeneratedAt:     now,
	}
	if !c.startedAt.IsZero() {
		snap.UptimeSeconds = int64(now.Sub(c.startedAt).Seconds())
	}
	if c.private != nil {
		snap.PrivateEndpoints = c.private.Pool.Health()
	}
	if storm := c.gen.Current(); storm != nil && now.Before(storm.EndsAt) {
		snap.StormActive = true
		snap.Storm = &core.StormSnapshot{
			StartedAt: storm.StartedAt,
			EndsAt:    storm.EndsAt,
			Duration:  storm.Duration,
			Intensity: storm.Intensity,
			Emitted:   storm.Emitted,
			Remaining: storm.Remaining,
		}
	}
	if at, ok := c.timers.next(timerHeartbeat); ok {
		snap.NextHeartbeatAt = &at
	}

	c.mu.Lock()
	snap.RecentActivity = append([]core.ActivityEntry(nil), c.activity...)
	c.mu.Unlock()
	return snap
}

func (c *Controller) shutdown() {
	c.inflight.Wait()
	now := c.now()
	c.drainCompletions(now)

	c.mu.Lock()
	c.stopped = true
	drained := c.gate.Drain()
	c.mu.Unlock()

	for _, pending := range drained {
		pending.Handle.resolve(cancelledOutcome(pending.ID, context.Canceled))
		metrics.RecordRealOutcome(string(core.FailureCancelled))
	}
	metrics.SetPendingReals(0)

	c.state = StateIdle
	c.refreshSnapshot(now)

	if c.logger != nil {
		c.logger.Info("Mimicry controller stopped",
			zap.Int("cancelled_reals", len(drained)),
			zap.Int64("decoys_emitted", c.decoysEmitted.Load()))
	}
}

// track registers a handle for Lookup. Callers hold c.mu.
func (c *Controller) track(handle *Handle) {
	c.handles[handle.ID] = handle
	c.history = append(c.history, handle.ID)

	excess := len(c.history) - c.opts.HistoryLimit
	if excess <= 0 {
		return
	}
	kept := c.history[:0]
	for _, id := range c.history {
		if excess > 0 {
			existing := c.handles[id]
			if existing == nil || terminal(existing.State()) {
				delete(c.handles, id)
				excess--
				continue
			}
		}
		kept = append(kept, id)
	}
	c.history = kept
}

func (c *Controller) appendActivity(entry core.ActivityEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activity = append(c.activity, entry)
	if overflow := len(c.activity) - c.opts.ActivityLimit; overflow > 0 {
		c.activity = append(c.activity[:0], c.activity[overflow:]...)
	}
}

func (c *Controller) record(outcome core.Outcome) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	record := core.DispatchRecord{
		ID:          outcome.RequestID,
		Kind:        outcome.Kind,
		Source:      outcome.Source,
		Endpoint:    outcome.Endpoint,
		Attempts:    outcome.Attempts,
		Result:      core.ResultLabel(outcome),
		FailureKind: outcome.Failure,
		Duration:    outcome.Duration,
		CreatedAt:   c.now(),
	}
	err := c.journal.RecordDispatch(ctx, record)
	metrics.RecordJournalWrite(err == nil)
	if err != nil && c.logger != nil {
		c.logger.Warn("Failed to journal dispatch",
			zap.String("request_id", outcome.RequestID),
			zap.Error(err))
	}
}

func (c *Controller) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now().UTC()
}

func activityFor(at time.Time, outcome core.Outcome) core.ActivityEntry {
	return core.ActivityEntry{
		At:       at,
		Kind:     outcome.Kind,
		Source:   outcome.Source,
		Result:   core.ResultLabel(outcome),
		Endpoint: outcome.Endpoint,
		Attempts: outcome.Attempts,
	}
}

func cancelledOutcome(id string, err error) core.Outcome {
	return core.Outcome{
		RequestID: id,
		Kind:      core.KindReal,
		Source:    core.SourceReal,
		Failure:   core.FailureCancelled,
		LastError: err,
	}
}

func terminal(state core.RealState) bool {
	switch state {
	case core.RealSucceeded, core.RealFailed, core.RealCancelled:
		return true
	default:
		return false
	}
}
