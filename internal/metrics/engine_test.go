package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostpni/ghostpni/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: collector,
	})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	return collector
}

func TestEngineMetricsEmitted(t *testing.T) {
	collector := setupTelemetry(t)

	RecordDispatchOutcome("public", "decoy", "success", 20*time.Millisecond)
	RecordDispatchAttempt("public", "transport_error")
	SetInFlight(2)
	RecordDecoyEmitted("heartbeat")
	RecordDecoyDropped("all_endpoints_down")
	RecordStormStarted("window")
	RecordRealSubmitted()
	RecordRealReleased(3 * time.Second)
	RecordRealOutcome("success")
	SetPendingReals(1)

	for _, name := range []string{
		DispatchTotal,
		DispatchDurationMS,
		DispatchAttemptsTotal,
		InFlightRequests,
		DecoysEmittedTotal,
		DecoysDroppedTotal,
		StormsStartedTotal,
		RealsSubmittedTotal,
		RealsReleasedTotal,
		RealCoverWaitMS,
		RealsOutcomeTotal,
		RealsPending,
	} {
		assert.Greater(t, collector.CountMetricsByName(name), 0, "expected %s", name)
	}
}

func TestAppMetricsEmitted(t *testing.T) {
	collector := setupTelemetry(t)

	RecordJournalWrite(true)
	RecordJournalWrite(false)
	SetJournalPruned(4)
	RecordHealthCheck("engine", true, time.Millisecond)
	SetServerStartTime(time.Now().Unix())
	SetServerUptime(12)
	RecordError("NOT_FOUND", 404)

	assert.Equal(t, 2, collector.CountMetricsByName(JournalWritesTotal))
	assert.Greater(t, collector.CountMetricsByName(JournalLastPruned), 0)
	assert.Greater(t, collector.CountMetricsByName(HealthCheckTotal), 0)
	assert.Greater(t, collector.CountMetricsByName(ServerUptime), 0)
	assert.Greater(t, collector.CountMetricsByName(ErrorsTotalName), 0)
}

func TestMetricsNoopWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	assert.NotPanics(t, func() {
		RecordDispatchOutcome("public", "real", "success", time.Millisecond)
		RecordRealReleased(time.Second)
		SetPendingReals(0)
		RecordJournalWrite(true)
	})
}
