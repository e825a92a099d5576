package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ghostpni/ghostpni/internal/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type transportCall struct {
	endpoint string
	payload  string
}

type fakeTransport struct {
	mu      sync.Mutex
	calls   []transportCall
	failAll bool
	failing map[string]bool
	status  int
}

func (f *fakeTransport) Call(ctx context.Context, endpoint string, payload []byte) (*core.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, transportCall{endpoint: endpoint, payload: string(payload)})
	fail := f.failAll || f.failing[endpoint]
	status := f.status
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail {
		if status == 0 {
			status = 503
		}
		return nil, &core.TransportError{Endpoint: endpoint, StatusCode: status}
	}
	return &core.Response{Endpoint: endpoint, StatusCode: 200, Body: []byte(`{"jsonrpc":"2.0","id":1,"result":"0x"}`)}, nil
}

func (f *fakeTransport) Calls() []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transportCall(nil), f.calls...)
}

type stubDecoys struct {
	mu sync.Mutex
	n  int
}

func (s *stubDecoys) Build(source core.Source) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return []byte(fmt.Sprintf("decoy-%s-%d", source, s.n)), nil
}

type memoryJournal struct {
	mu      sync.Mutex
	records []core.DispatchRecord
}

func (j *memoryJournal) RecordDispatch(_ context.Context, record core.DispatchRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, record)
	return nil
}

func (j *memoryJournal) Records() []core.DispatchRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]core.DispatchRecord(nil), j.records...)
}
