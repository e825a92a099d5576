package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/crypto/sha3"

	"github.com/ghostpni/ghostpni/internal/core"
)

// SimulatedTransport answers calls in-process after a random latency and
// fails a configurable share of them with HTTP 503. Transaction methods get
// the keccak-256 of the payload as a transaction hash; everything else
// gets "0x0".
type SimulatedTransport struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64

	mu  sync.Mutex
	rng *rand.Rand

	calls    atomic.Int64
	failures atomic.Int64
}

// NewSimulatedTransport returns a simulated transport. A nil rng uses a
// random seed.
func NewSimulatedTransport(minLatency, maxLatency time.Duration, failureRate float64, rng *rand.Rand) *SimulatedTransport {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &SimulatedTransport{
		MinLatency:  minLatency,
		MaxLatency:  maxLatency,
		FailureRate: failureRate,
		rng:         rng,
	}
}

// Call waits out the simulated latency, then fails or answers.
func (t *SimulatedTransport) Call(ctx context.Context, endpoint string, payload []byte) (*core.Response, error) {
	t.calls.Inc()
	latency, fail := t.draw()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, &core.TransportError{Endpoint: endpoint, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	if fail {
		t.failures.Inc()
		return nil, &core.TransportError{Endpoint: endpoint, StatusCode: http.StatusServiceUnavailable}
	}

	body, err := simulatedResult(payload)
	if err != nil {
		return nil, err
	}
	return &core.Response{Endpoint: endpoint, StatusCode: http.StatusOK, Body: body}, nil
}

// Calls returns how many calls were attempted.
func (t *SimulatedTransport) Calls() int64 {
	return t.calls.Load()
}

// Failures returns how many calls were failed on purpose.
func (t *SimulatedTransport) Failures() int64 {
	return t.failures.Load()
}

func (t *SimulatedTransport) draw() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	latency := t.MinLatency
	if spread := t.MaxLatency - t.MinLatency; spread > 0 {
		latency += time.Duration(t.rng.Int64N(int64(spread) + 1))
	}
	return latency, t.FailureRate > 0 && t.rng.Float64() < t.FailureRate
}

func simulatedResult(payload []byte) ([]byte, error) {
	id := json.RawMessage("null")
	result := `"0x0"`
	if req, err := ParseRequest(payload); err == nil {
		if len(req.ID) > 0 {
			id = req.ID
		}
		if IsTransactionMethod(req.Method) {
			hash := sha3.NewLegacyKeccak256()
			hash.Write(payload)
			result = `"0x` + hex.EncodeToString(hash.Sum(nil)) + `"`
		}
	}
	return json.Marshal(Response{JSONRPC: Version, ID: id, Result: json.RawMessage(result)})
}
