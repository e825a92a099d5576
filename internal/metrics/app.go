package metrics

import (
	"strconv"
	"time"

	"github.com/ghostpni/ghostpni/internal/observability"
)

// Process and HTTP surface metric names
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"

	JournalWritesTotal = "journal_writes_total"
	JournalLastPruned  = "journal_last_pruned_rows"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

func count(name string, tags map[string]string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(name, 1, tags)
	}
}

func gauge(name string, value float64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(name, value, nil)
	}
}

func outcomeLabel(ok bool, good, bad string) string {
	if ok {
		return good
	}
	return bad
}

// RecordError counts an error envelope written to a client.
func RecordError(errorCode string, httpStatus int) {
	count(ErrorsTotalName, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordErrorByEndpoint counts an error envelope against the request path.
func RecordErrorByEndpoint(endpoint, errorCode string) {
	count(ErrorsByEndpointName, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	count(PanicsTotalName, nil)
}

// RecordJournalWrite counts one dispatch journal insert.
func RecordJournalWrite(success bool) {
	count(JournalWritesTotal, map[string]string{"status": outcomeLabel(success, "success", "failure")})
}

// SetJournalPruned records how many rows the last retention pass removed.
func SetJournalPruned(rows int64) {
	gauge(JournalLastPruned, float64(rows))
}

func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	count(HealthCheckTotal, map[string]string{
		"check":  checkName,
		"status": outcomeLabel(healthy, "healthy", "unhealthy"),
	})
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
	}
}

// SetServerStartTime records the server start as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	gauge(ServerStartTime, float64(timestamp))
}

func SetServerUptime(seconds int64) {
	gauge(ServerUptime, float64(seconds))
}
