package broker

import (
	"sync"
	"time"
)

// queue is a thread-safe FIFO supporting blocking pop with timeout and
// non-destructive peek. A slice guarded by a mutex keeps FIFO order exact;
// the buffered notify channel wakes at most one blocked consumer per push.
type queue struct {
	mu     sync.Mutex
	items  []*Message
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(m *Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest message, blocking up to timeout. A zero
// or negative timeout is a non-blocking poll.
func (q *queue) pop(timeout time.Duration) (*Message, bool) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items = q.items[1:]
			leftover := len(q.items) > 0
			q.mu.Unlock()
			if leftover {
				// Re-arm so another waiter is not stranded on a
				// consumed wake-up token.
				q.signal()
			}
			return m, true
		}
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if timeout <= 0 || remaining <= 0 {
			return nil, false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
			return nil, false
		}
	}
}

// peek returns a copy of the pending slice without consuming anything.
func (q *queue) peek() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Message, len(q.items))
	copy(out, q.items)
	return out
}

func (q *queue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
