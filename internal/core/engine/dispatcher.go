package engine

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/metrics"
)

// Transport performs one call against one endpoint. Retryable failures are
// returned as *core.TransportError.
type Transport interface {
	Call(ctx context.Context, endpoint string, payload []byte) (*core.Response, error)
}

// Dispatcher issues one outbound request with timeout, retry and fail-over
// across its pool.
type Dispatcher struct {
	Pool        *Pool
	Transport   Transport
	MaxAttempts int
	Timeout     time.Duration
	// Name labels metrics and logs ("public", "private").
	Name   string
	Logger *logging.Logger
	Clock  func() time.Time
}

// Dispatch runs the request to a terminal outcome. It never returns an
// error; failures are reported in the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, req *core.DispatchRequest) core.Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		req = &core.DispatchRequest{}
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	start := d.now()
	outcome := core.Outcome{
		RequestID: req.ID,
		Kind:      req.Kind,
		Source:    req.Source,
	}
	finish := func(o core.Outcome) core.Outcome {
		o.Attempts = req.AttemptCount
		o.Duration = d.now().Sub(start)
		metrics.RecordDispatchOutcome(d.name(), string(req.Kind), core.ResultLabel(o), o.Duration)
		return o
	}

	if d == nil || d.Pool == nil || d.Transport == nil {
		outcome.Failure = core.FailureAllEndpointsDown
		outcome.LastError = errors.New("dispatcher is not configured")
		return finish(outcome)
	}

	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if req.AttemptCount == 0 && d.Pool.AllDegraded() {
		outcome.Failure = core.FailureAllEndpointsDown
		outcome.LastError = core.ErrAllEndpointsDown
		return finish(outcome)
	}

	exclude := ""
	for req.AttemptCount < maxAttempts {
		if err := ctx.Err(); err != nil {
			outcome.Failure = core.FailureCancelled
			outcome.LastError = err
			return finish(outcome)
		}

		endpoint, err := d.Pool.Select(exclude)
		if err != nil && req.AttemptCount > 0 {
			endpoint, err = d.Pool.Fallback(exclude)
		}
		if err != nil {
			outcome.Failure = core.FailureAllEndpointsDown
			if outcome.LastError == nil {
				outcome.LastError = err
			}
			return finish(outcome)
		}

		if !req.Deadline.IsZero() && !d.now().Before(req.Deadline) {
			outcome.Failure = core.FailureRetriesExhausted
			outcome.LastError = context.DeadlineExceeded
			return finish(outcome)
		}

		req.AttemptCount++
		outcome.Endpoint = endpoint

		resp, err := d.attempt(ctx, req, endpoint)
		if err == nil {
			d.Pool.RecordSuccess(endpoint)
			metrics.RecordDispatchAttempt(d.name(), "success")
			outcome.Response = resp
			return finish(outcome)
		}

		if ctx.Err() != nil {
			outcome.Failure = core.FailureCancelled
			outcome.LastError = ctx.Err()
			return finish(outcome)
		}

		d.Pool.RecordFailure(endpoint)
		metrics.RecordDispatchAttempt(d.name(), "failure")

		var transportErr *core.TransportError
		if errors.As(err, &transportErr) && transportErr.RetryAfter > 0 {
			d.Pool.Backoff(endpoint, d.now().Add(transportErr.RetryAfter))
		}

		if d.Logger != nil {
			d.Logger.Debug("Dispatch attempt failed",
				zap.String("dispatcher", d.name()),
				zap.String("request_id", req.ID),
				zap.String("kind", string(req.Kind)),
				zap.String("endpoint", endpoint),
				zap.Int("attempt", req.AttemptCount),
				zap.Error(err))
		}

		outcome.LastError = err
		exclude = endpoint
	}

	outcome.Failure = core.FailureRetriesExhausted
	return finish(outcome)
}

func (d *Dispatcher) attempt(ctx context.Context, req *core.DispatchRequest, endpoint string) (*core.Response, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !req.Deadline.IsZero() {
		var cancelDeadline context.CancelFunc
		callCtx, cancelDeadline = context.WithDeadline(callCtx, req.Deadline)
		defer cancelDeadline()
	}

	resp, err := d.Transport.Call(callCtx, endpoint, req.Payload)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &core.TransportError{Endpoint: endpoint, Err: errors.New("empty response")}
	}
	if resp.Endpoint == "" {
		resp.Endpoint = endpoint
	}
	return resp, nil
}

func (d *Dispatcher) name() string {
	if d == nil || d.Name == "" {
		return "public"
	}
	return d.Name
}

func (d *Dispatcher) now() time.Time {
	if d != nil && d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}
