package handlers

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/engine"
)

const testEndpoint = "https://rpc.test.invalid"

type recordingTransport struct {
	mu       sync.Mutex
	payloads []string
	fail     bool
	body     string
}

func (t *recordingTransport) Call(ctx context.Context, endpoint string, payload []byte) (*core.Response, error) {
	t.mu.Lock()
	t.payloads = append(t.payloads, string(payload))
	fail, body := t.fail, t.body
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail {
		return nil, &core.TransportError{Endpoint: endpoint, StatusCode: http.StatusServiceUnavailable}
	}
	if body == "" {
		body = `{"jsonrpc":"2.0","id":1,"result":"0xabc"}`
	}
	return &core.Response{Endpoint: endpoint, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func (t *recordingTransport) Payloads() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.payloads...)
}

// newTestController builds a controller with a zero cover target so reals are
// released on the first tick.
func newTestController(t *testing.T, transport *recordingTransport) *engine.Controller {
	t.Helper()

	pool, err := engine.NewPool([]string{testEndpoint}, engine.PoolOptions{DegradedThreshold: 3})
	require.NoError(t, err)

	controller, err := engine.NewController(engine.Options{
		Network:      "testnet",
		TickInterval: 5 * time.Millisecond,
	}, engine.Dependencies{
		Public: &engine.Dispatcher{
			Pool:        pool,
			Transport:   transport,
			MaxAttempts: 2,
			Timeout:     time.Second,
			Name:        "public",
		},
		Limiter: engine.NewLimiter(4),
	})
	require.NoError(t, err)
	return controller
}

// runController drives the schedule until the test ends.
func runController(t *testing.T, controller *engine.Controller) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = controller.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func newEngineRouter(h *EngineHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/status", h.Status)
	r.Get("/api/v1/endpoints", h.Endpoints)
	r.Post("/api/v1/transactions", h.SubmitTransaction)
	r.Get("/api/v1/transactions/{id}", h.GetTransaction)
	r.Delete("/api/v1/transactions/{id}", h.CancelTransaction)
	r.Post("/api/v1/admin/pause", h.Pause)
	r.Post("/api/v1/admin/resume", h.Resume)
	r.Post("/api/v1/admin/storm", h.Storm)
	r.Post("/rpc", h.RPCProxy)
	return r
}
