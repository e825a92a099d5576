package metrics

import (
	"time"

	"github.com/ghostpni/ghostpni/internal/observability"
)

// Engine metric names
const (
	DispatchTotal         = "dispatch_total"
	DispatchDurationMS    = "dispatch_duration_ms"
	DispatchAttemptsTotal = "dispatch_attempts_total"
	InFlightRequests      = "dispatch_inflight"
	DecoysEmittedTotal    = "decoys_emitted_total"
	DecoysDroppedTotal    = "decoys_dropped_total"
	StormsStartedTotal    = "storms_started_total"
	RealsSubmittedTotal   = "reals_submitted_total"
	RealsReleasedTotal    = "reals_released_total"
	RealCoverWaitMS       = "real_cover_wait_ms"
	RealsOutcomeTotal     = "real_outcomes_total"
	RealsPending          = "reals_pending"
)

// RecordDispatchOutcome records the terminal result of one dispatch.
func RecordDispatchOutcome(dispatcher, kind, result string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	tags := map[string]string{
		"dispatcher": dispatcher,
		"kind":       kind,
		"result":     result,
	}
	_ = observability.TelemetrySystem.Counter(DispatchTotal, 1, tags)
	_ = observability.TelemetrySystem.Histogram(DispatchDurationMS, duration, tags)
}

// RecordDispatchAttempt records one transport attempt.
func RecordDispatchAttempt(dispatcher, result string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DispatchAttemptsTotal,
			1,
			map[string]string{
				"dispatcher": dispatcher,
				"result":     result,
			},
		)
	}
}

// SetInFlight sets the number of dispatches holding a concurrency slot.
func SetInFlight(count int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(InFlightRequests, float64(count), nil)
	}
}

// RecordDecoyEmitted counts a decoy handed to the dispatcher.
func RecordDecoyEmitted(source string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DecoysEmittedTotal,
			1,
			map[string]string{"source": source},
		)
	}
}

// RecordDecoyDropped counts a decoy that did not count as cover.
func RecordDecoyDropped(reason string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DecoysDroppedTotal,
			1,
			map[string]string{"reason": reason},
		)
	}
}

// RecordStormStarted counts a storm, tagged by what triggered it.
func RecordStormStarted(trigger string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			StormsStartedTotal,
			1,
			map[string]string{"trigger": trigger},
		)
	}
}

// RecordRealSubmitted counts a real transaction entering the gate.
func RecordRealSubmitted() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(RealsSubmittedTotal, 1, nil)
	}
}

// RecordRealReleased counts a released real and how long it waited for cover.
func RecordRealReleased(waited time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(RealsReleasedTotal, 1, nil)
	_ = observability.TelemetrySystem.Histogram(RealCoverWaitMS, waited, nil)
}

// RecordRealOutcome counts the terminal result of a real transaction.
func RecordRealOutcome(result string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RealsOutcomeTotal,
			1,
			map[string]string{"result": result},
		)
	}
}

// SetPendingReals sets the gate queue depth.
func SetPendingReals(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(RealsPending, float64(count), nil)
	}
}
