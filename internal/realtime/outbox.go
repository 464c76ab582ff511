package realtime

import (
	"fmt"
	"strings"
	"sync"
)

// OverflowPolicy decides what a full Queue does with a new event.
type OverflowPolicy string

const (
	// OverflowDisconnect rejects the event with ErrOutboxFull; the dispatcher
	// then disconnects the slow connection.
	OverflowDisconnect OverflowPolicy = "disconnect"
	// OverflowDropOldest evicts the oldest queued event to make room.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
)

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case OverflowDisconnect, OverflowDropOldest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Queue is a bounded ring of events with a single consumer. Producers signal
// the consumer through Ready; the consumer empties the ring with Drain.
type Queue struct {
	mu      sync.Mutex
	buf     []Event
	head    int
	n       int
	policy  OverflowPolicy
	closed  bool
	dropped uint64
	ready   chan struct{}
	done    chan struct{}
}

// NewQueue returns a Queue holding at most size events.
func NewQueue(size int, policy OverflowPolicy) *Queue {
	if size <= 0 {
		size = 1
	}
	if policy == "" {
		policy = OverflowDisconnect
	}
	return &Queue{
		buf:    make([]Event, size),
		policy: policy,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *Queue) Push(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrOutboxClosed
	}
	if q.n == len(q.buf) {
		if q.policy != OverflowDropOldest {
			return ErrOutboxFull
		}
		q.buf[q.head] = Event{}
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		q.dropped++
	}
	q.buf[(q.head+q.n)%len(q.buf)] = ev
	q.n++

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Ready receives a value whenever events were pushed since the last Drain.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

// Done is closed once the queue is closed.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Drain removes and returns every queued event in push order.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		return nil
	}
	out := make([]Event, q.n)
	for i := range out {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = Event{}
	}
	q.head, q.n = 0, 0
	return out
}

// Close rejects further pushes and closes Done. It reports whether this call
// performed the close.
func (q *Queue) Close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.closed = true
	close(q.done)
	return true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Dropped counts events evicted under OverflowDropOldest.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
