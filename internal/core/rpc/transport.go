package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ghostpni/ghostpni/internal/core"
)

const defaultMaxBodyBytes = 4 << 20

// HTTPTransport posts JSON-RPC payloads to an endpoint over HTTP.
type HTTPTransport struct {
	Client       *http.Client
	UserAgent    string
	MaxBodyBytes int64
	Clock        func() time.Time
}

// NewHTTPTransport returns a transport with the given client timeout.
func NewHTTPTransport(timeout time.Duration, userAgent string) *HTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTransport{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
	}
}

// Call sends one request. Connection failures, timeouts, HTTP 429 and 5xx
// are returned as *core.TransportError; any other status is a response.
func (t *HTTPTransport) Call(ctx context.Context, endpoint string, payload []byte) (*core.Response, error) {
	if t == nil {
		return nil, errors.New("rpc transport is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &core.TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	limit := t.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, &core.TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, &core.TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			RetryAfter: t.retryAfter(resp),
			Err:        fmt.Errorf("upstream returned %s", resp.Status),
		}
	}

	return &core.Response{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// retryAfter parses Retry-After as delta seconds or an HTTP date.
func (t *HTTPTransport) retryAfter(resp *http.Response) time.Duration {
	if resp == nil || resp.Header == nil {
		return 0
	}
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := http.ParseTime(value); err == nil {
		wait := parsed.Sub(t.now())
		if wait < 0 {
			return 0
		}
		return wait
	}
	return 0
}

func (t *HTTPTransport) now() time.Time {
	if t != nil && t.Clock != nil {
		return t.Clock()
	}
	return time.Now().UTC()
}
