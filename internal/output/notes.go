package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/ghostpni/ghostpni/internal/core"
)

func endpointStatus(health core.EndpointHealth, now time.Time) string {
	switch {
	case health.BackoffUntil != nil && health.BackoffUntil.After(now):
		return "backoff"
	case health.Degraded:
		return "degraded"
	case health.ConsecutiveFailures > 0:
		return "failing"
	default:
		return "healthy"
	}
}

func endpointNotes(health core.EndpointHealth, now time.Time) string {
	notes := make([]string, 0, 3)
	if health.LastUsedAt != nil {
		notes = append(notes, "used "+formatAge(*health.LastUsedAt, now))
	}
	if health.LastFailureAt != nil {
		notes = append(notes, "failed "+formatAge(*health.LastFailureAt, now))
	}
	if health.BackoffUntil != nil && health.BackoffUntil.After(now) {
		notes = append(notes, "retry in "+health.BackoffUntil.Sub(now).Round(time.Second).String())
	}
	return strings.Join(notes, "; ")
}

func formatAge(at time.Time, now time.Time) string {
	if at.IsZero() {
		return ""
	}
	age := now.Sub(at)
	if age < 0 {
		age = 0
	}
	if age < time.Second {
		return "just now"
	}
	return age.Round(time.Second).String() + " ago"
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func formatAverageMillis(ms float64) string {
	return fmt.Sprintf("%.0fms", ms)
}

func stateLabel(snapshot *core.Snapshot) string {
	state := snapshot.State
	if state == "" {
		state = "idle"
	}
	if snapshot.Paused {
		state += " (paused)"
	}
	if !snapshot.DecoysEnabled {
		state += " (decoys disabled)"
	}
	return state
}

func coverLabel(status core.RealStatus) string {
	if status.CoverTarget == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", status.CoverSent, status.CoverTarget)
}

func failureLabel(kind core.FailureKind) string {
	if kind == core.FailureNone {
		return "-"
	}
	return strings.ReplaceAll(string(kind), "_", " ")
}

func snapshotNow(snapshot *core.Snapshot) time.Time {
	if snapshot.GeneratedAt.IsZero() {
		return time.Now()
	}
	return snapshot.GeneratedAt
}
