package engine

import (
	"container/heap"
	"time"
)

type timerKind int

const (
	timerHeartbeat timerKind = iota
	timerStormWindow
	timerStormEmission
	timerSnapshot
)

type scheduledTimer struct {
	kind timerKind
	at   time.Time
	seq  uint64
}

// timerQueue orders timers by fire time, then insertion order.
type timerQueue []*scheduledTimer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) { *q = append(*q, x.(*scheduledTimer)) }

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// schedule is the set of next-fire times advanced by the driving tick.
type schedule struct {
	queue timerQueue
	seq   uint64
}

func (s *schedule) push(kind timerKind, at time.Time) {
	s.seq++
	heap.Push(&s.queue, &scheduledTimer{kind: kind, at: at, seq: s.seq})
}

// popDue removes and returns the earliest timer due at or before now.
func (s *schedule) popDue(now time.Time) (*scheduledTimer, bool) {
	if len(s.queue) == 0 || s.queue[0].at.After(now) {
		return nil, false
	}
	return heap.Pop(&s.queue).(*scheduledTimer), true
}

// next returns the earliest fire time for a timer kind.
func (s *schedule) next(kind timerKind) (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)
	for _, timer := range s.queue {
		if timer.kind != kind {
			continue
		}
		if !found || timer.at.Before(earliest) {
			earliest = timer.at
			found = true
		}
	}
	return earliest, found
}

// remove drops every timer of a kind.
func (s *schedule) remove(kind timerKind) {
	kept := s.queue[:0]
	for _, timer := range s.queue {
		if timer.kind != kind {
			kept = append(kept, timer)
		}
	}
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = kept
	heap.Init(&s.queue)
}
