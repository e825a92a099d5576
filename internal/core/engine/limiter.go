package engine

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/ghostpni/ghostpni/internal/metrics"
)

// Limiter bounds the number of in-flight dispatches.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// Slot is one held permit. Release is idempotent.
type Slot struct {
	limiter *Limiter
	once    sync.Once
}

// NewLimiter returns a limiter with the given number of permits (min 1).
func NewLimiter(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a permit is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) (*Slot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return l.grant(), nil
}

// Release returns the permit to the limiter.
func (s *Slot) Release() {
	if s == nil || s.limiter == nil {
		return
	}
	s.once.Do(func() {
		current := s.limiter.inFlight.Dec()
		s.limiter.sem.Release(1)
		metrics.SetInFlight(current)
	})
}

// InFlight returns the number of held permits.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak returns the highest number of permits held at once.
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}

// Capacity returns the permit count.
func (l *Limiter) Capacity() int {
	return l.capacity
}

func (l *Limiter) grant() *Slot {
	current := l.inFlight.Inc()
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	metrics.SetInFlight(current)
	return &Slot{limiter: l}
}
