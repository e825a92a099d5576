package core

import (
	"errors"
	"fmt"
	"time"
)

// DispatchKind identifies what an outbound request carries.
type DispatchKind string

const (
	KindDecoy       DispatchKind = "decoy"
	KindReal        DispatchKind = "real"
	KindPassthrough DispatchKind = "passthrough"
)

// Source records which schedule produced a dispatch.
type Source string

const (
	SourceHeartbeat Source = "heartbeat"
	SourceStorm     Source = "storm"
	SourceReal      Source = "real"
	SourceProxy     Source = "proxy"
)

// FailureKind classifies a terminal dispatch failure.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureAllEndpointsDown FailureKind = "all_endpoints_down"
	FailureRetriesExhausted FailureKind = "retries_exhausted"
	FailureCancelled        FailureKind = "cancelled"
)

var (
	ErrAllEndpointsDown = errors.New("all endpoints down")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrCancelled        = errors.New("dispatch cancelled")
	ErrEmptyPayload     = errors.New("payload is required")
)

// DispatchRequest is one outbound call owned by the dispatcher until it
// reaches a terminal outcome.
type DispatchRequest struct {
	ID           string
	Kind         DispatchKind
	Source       Source
	Payload      []byte
	AttemptCount int
	Deadline     time.Time
}

// Response is a successful transport round trip.
type Response struct {
	Endpoint   string `json:"endpoint"`
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"-"`
}

// Outcome is the terminal result of a dispatch.
type Outcome struct {
	RequestID string        `json:"request_id"`
	Kind      DispatchKind  `json:"kind"`
	Source    Source        `json:"source"`
	Response  *Response     `json:"response,omitempty"`
	Failure   FailureKind   `json:"failure,omitempty"`
	Attempts  int           `json:"attempts"`
	Endpoint  string        `json:"endpoint,omitempty"`
	Duration  time.Duration `json:"duration"`
	LastError error         `json:"-"`
}

// Succeeded reports whether the dispatch produced a response.
func (o Outcome) Succeeded() bool {
	return o.Failure == FailureNone && o.Response != nil
}

// Err returns a *DispatchError for failed outcomes and nil otherwise.
func (o Outcome) Err() error {
	if o.Failure == FailureNone {
		return nil
	}
	return &DispatchError{
		Kind:     o.Failure,
		Attempts: o.Attempts,
		Endpoint: o.Endpoint,
		Err:      o.LastError,
	}
}

// DispatchError describes a terminal failure. It matches the package
// sentinels with errors.Is.
type DispatchError struct {
	Kind     FailureKind
	Attempts int
	Endpoint string
	Err      error
}

func (e *DispatchError) Error() string {
	msg := string(e.Kind)
	switch e.Kind {
	case FailureAllEndpointsDown:
		msg = ErrAllEndpointsDown.Error()
	case FailureRetriesExhausted:
		msg = fmt.Sprintf("%s after %d attempt(s)", ErrRetriesExhausted.Error(), e.Attempts)
	case FailureCancelled:
		msg = ErrCancelled.Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func (e *DispatchError) Is(target error) bool {
	switch target {
	case ErrAllEndpointsDown:
		return e.Kind == FailureAllEndpointsDown
	case ErrRetriesExhausted:
		return e.Kind == FailureRetriesExhausted
	case ErrCancelled:
		return e.Kind == FailureCancelled
	default:
		return false
	}
}

// TransportError is a retryable failure talking to a single endpoint:
// connection errors, timeouts, HTTP 5xx and 429.
type TransportError struct {
	Endpoint   string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error from %s: http %d", e.Endpoint, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport error from %s: %v", e.Endpoint, e.Err)
	}
	return "transport error from " + e.Endpoint
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// EndpointHealth is a read-only copy of one endpoint's state.
type EndpointHealth struct {
	URL                 string     `json:"url"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalSuccesses      int64      `json:"total_successes"`
	TotalFailures       int64      `json:"total_failures"`
	LastUsedAt          *time.Time `json:"last_used_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	BackoffUntil        *time.Time `json:"backoff_until,omitempty"`
	Degraded            bool       `json:"degraded"`
}

// ActivityEntry is one line of the dashboard activity feed.
type ActivityEntry struct {
	At       time.Time    `json:"at"`
	Kind     DispatchKind `json:"kind"`
	Source   Source       `json:"source"`
	Result   string       `json:"result"`
	Endpoint string       `json:"endpoint,omitempty"`
	Attempts int          `json:"attempts"`
}

// StormSnapshot describes the storm in progress.
type StormSnapshot struct {
	StartedAt time.Time     `json:"started_at"`
	EndsAt    time.Time     `json:"ends_at"`
	Duration  time.Duration `json:"duration"`
	Intensity int           `json:"intensity"`
	Emitted   int           `json:"emitted"`
	Remaining int           `json:"remaining"`
}

// Snapshot is the read-only view served to the dashboard.
type Snapshot struct {
	Network          string           `json:"network"`
	State            string           `json:"state"`
	Paused           bool             `json:"paused"`
	DecoysEnabled    bool             `json:"decoys_enabled"`
	StormActive      bool             `json:"storm_active"`
	Storm            *StormSnapshot   `json:"storm,omitempty"`
	DecoysEmitted    int64            `json:"decoys_emitted"`
	DecoysCompleted  int64            `json:"decoys_completed"`
	DecoysDropped    int64            `json:"decoys_dropped"`
	StormsStarted    int64            `json:"storms_started"`
	RealsSubmitted   int64            `json:"reals_submitted"`
	RealsReleased    int64            `json:"reals_released"`
	RealsFailed      int64            `json:"reals_failed"`
	PendingReals     int              `json:"pending_reals"`
	CoverTarget      int              `json:"cover_target"`
	InFlight         int              `json:"in_flight"`
	PeakInFlight     int              `json:"peak_in_flight"`
	MaxConcurrent    int              `json:"max_concurrent"`
	NextHeartbeatAt  *time.Time       `json:"next_heartbeat_at,omitempty"`
	Endpoints        []EndpointHealth `json:"endpoints"`
	PrivateEndpoints []EndpointHealth `json:"private_endpoints,omitempty"`
	RecentActivity   []ActivityEntry  `json:"recent_activity,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	UptimeSeconds    int64            `json:"uptime_seconds"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// RealState tracks a submitted transaction through the gate.
type RealState string

const (
	RealPending     RealState = "pending"
	RealDispatching RealState = "dispatching"
	RealSucceeded   RealState = "succeeded"
	RealFailed      RealState = "failed"
	RealCancelled   RealState = "cancelled"
)

// RealStatus is the externally visible status of a submitted transaction.
type RealStatus struct {
	ID          string      `json:"id"`
	State       RealState   `json:"state"`
	SubmittedAt time.Time   `json:"submitted_at"`
	ReleasedAt  *time.Time  `json:"released_at,omitempty"`
	CoverSent   int         `json:"cover_sent"`
	CoverTarget int         `json:"cover_target"`
	Failure     FailureKind `json:"failure,omitempty"`
	Attempts    int         `json:"attempts,omitempty"`
	Endpoint    string      `json:"endpoint,omitempty"`
	StatusCode  int         `json:"status_code,omitempty"`
}

// DispatchRecord is a journal row. Payloads and responses are never kept.
type DispatchRecord struct {
	ID          string        `json:"id"`
	Kind        DispatchKind  `json:"kind"`
	Source      Source        `json:"source"`
	Endpoint    string        `json:"endpoint,omitempty"`
	Attempts    int           `json:"attempts"`
	Result      string        `json:"result"`
	FailureKind FailureKind   `json:"failure_kind,omitempty"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ResultLabel maps an outcome to the journal/metrics result label.
func ResultLabel(o Outcome) string {
	if o.Failure != FailureNone {
		return string(o.Failure)
	}
	return "success"
}
