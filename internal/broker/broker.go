package broker

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultMaxHistory bounds the in-memory message history.
const DefaultMaxHistory = 1000

// Handler is an optional callback invoked synchronously after a message is
// enqueued for the agent it was registered under.
type Handler func(*Message)

// Recorder mirrors history entries to durable storage (the sqlite journal).
// Record failures must never affect delivery.
type Recorder interface {
	Record(*Message) error
}

// Forwarder relays broadcast and delegation traffic to other processes.
type Forwarder interface {
	Forward(*Message) error
}

// Broker routes point-to-point and broadcast messages between named agents.
// Safe for concurrent producers and consumers.
type Broker struct {
	// mu guards the id sequence and the bounded history together: an id is
	// assigned and its message journaled in one critical section.
	mu         sync.Mutex
	seq        uint64
	history    []*Message
	maxHistory int

	qmu      sync.RWMutex
	queues   map[string]*queue
	handlers map[string][]Handler

	recorder  Recorder
	forwarder Forwarder
}

// New creates a Broker with the given history capacity. Non-positive values
// fall back to DefaultMaxHistory.
func New(maxHistory int) *Broker {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Broker{
		maxHistory: maxHistory,
		queues:     make(map[string]*queue),
		handlers:   make(map[string][]Handler),
	}
}

// SetRecorder attaches a history recorder. Pass nil to detach.
func (b *Broker) SetRecorder(r Recorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorder = r
}

// SetForwarder attaches a cross-process forwarder. Pass nil to detach.
func (b *Broker) SetForwarder(f Forwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarder = f
}

// Register creates the agent's inbound queue if absent and appends any given
// handlers. Idempotent: re-registering an existing agent is not an error.
func (b *Broker) Register(agent string, handlers ...Handler) {
	b.qmu.Lock()
	defer b.qmu.Unlock()
	if _, ok := b.queues[agent]; !ok {
		b.queues[agent] = newQueue()
	}
	if len(handlers) > 0 {
		b.handlers[agent] = append(b.handlers[agent], handlers...)
	}
}

// Registered reports whether the agent has a queue.
func (b *Broker) Registered(agent string) bool {
	b.qmu.RLock()
	defer b.qmu.RUnlock()
	_, ok := b.queues[agent]
	return ok
}

// Agents returns the sorted list of registered agent names.
func (b *Broker) Agents() []string {
	b.qmu.RLock()
	defer b.qmu.RUnlock()
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send enqueues the message for its recipient, or fans it out to every other
// registered agent when To is the broadcast sentinel. Returns false when the
// recipient is unknown; all other failures are logged and absorbed.
func (b *Broker) Send(msg *Message) bool {
	if msg == nil {
		return false
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}

	if msg.To == Broadcast {
		b.stamp(msg)
		b.journal(msg)
		b.broadcast(msg)
		b.forward(msg)
		return true
	}

	b.qmu.RLock()
	q, ok := b.queues[msg.To]
	handlers := b.handlers[msg.To]
	b.qmu.RUnlock()
	if !ok {
		slog.Warn("Broker: recipient not registered", "to", msg.To, "from", msg.From)
		return false
	}

	b.stamp(msg)
	b.journal(msg)
	q.push(msg)
	for _, h := range handlers {
		h(msg)
	}
	if msg.Kind == KindDelegation {
		b.forward(msg)
	}
	return true
}

// stamp assigns a process-unique id derived from sender, sequence, and
// wall-clock when the caller did not provide one.
func (b *Broker) stamp(msg *Message) {
	if msg.ID != "" {
		return
	}
	b.mu.Lock()
	b.seq++
	msg.ID = fmt.Sprintf("msg_%s_%d_%d", msg.From, b.seq, msg.CreatedAt.UnixNano())
	b.mu.Unlock()
}

// journal appends to the bounded in-memory history, evicting oldest-first,
// and mirrors the entry to the recorder best-effort.
func (b *Broker) journal(msg *Message) {
	b.mu.Lock()
	b.history = append(b.history, msg)
	if len(b.history) > b.maxHistory {
		b.history = b.history[len(b.history)-b.maxHistory:]
	}
	rec := b.recorder
	b.mu.Unlock()

	if rec != nil {
		if err := rec.Record(msg); err != nil {
			slog.Warn("Broker: journal write failed", "id", msg.ID, "error", err)
		}
	}
}

// broadcast synthesizes one per-recipient copy for every registered agent
// except the sender. The original message is journaled once; the copies are
// enqueued but not separately journaled.
func (b *Broker) broadcast(msg *Message) {
	b.qmu.RLock()
	defer b.qmu.RUnlock()
	for name, q := range b.queues {
		if name == msg.From {
			continue
		}
		dup := msg.clone()
		dup.ID = fmt.Sprintf("%s_to_%s", msg.ID, name)
		dup.To = name
		q.push(dup)
		for _, h := range b.handlers[name] {
			h(dup)
		}
	}
}

func (b *Broker) forward(msg *Message) {
	b.mu.Lock()
	fwd := b.forwarder
	b.mu.Unlock()
	if fwd == nil {
		return
	}
	if err := fwd.Forward(msg); err != nil {
		slog.Warn("Broker: forward failed", "id", msg.ID, "error", err)
	}
}

// Receive pops the oldest pending message for the agent, blocking up to
// timeout. Returns false on timeout, empty queue with zero timeout, or an
// unknown agent.
func (b *Broker) Receive(agent string, timeout time.Duration) (*Message, bool) {
	b.qmu.RLock()
	q, ok := b.queues[agent]
	b.qmu.RUnlock()
	if !ok {
		slog.Warn("Broker: receive for unregistered agent", "agent", agent)
		return nil, false
	}
	return q.pop(timeout)
}

// PeekPending returns the agent's queued messages without consuming them.
func (b *Broker) PeekPending(agent string) []*Message {
	b.qmu.RLock()
	q, ok := b.queues[agent]
	b.qmu.RUnlock()
	if !ok {
		return nil
	}
	return q.peek()
}

// PendingCount returns the number of queued messages for the agent.
func (b *Broker) PendingCount(agent string) int {
	b.qmu.RLock()
	q, ok := b.queues[agent]
	b.qmu.RUnlock()
	if !ok {
		return 0
	}
	return q.size()
}

// History returns a filtered view of the bounded history, most-recent-last.
// Empty agent or kind means no filter on that field; agent matches either
// endpoint. A positive limit trims to the most recent entries.
func (b *Broker) History(agent string, kind MessageKind, limit int) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Message, 0, len(b.history))
	for _, m := range b.history {
		if agent != "" && m.From != agent && m.To != agent {
			continue
		}
		if kind != "" && m.Kind != kind {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Reset drops all queues, handlers, history, and the id sequence. Intended
// for test isolation and explicit operator resets.
func (b *Broker) Reset() {
	b.qmu.Lock()
	b.queues = make(map[string]*queue)
	b.handlers = make(map[string][]Handler)
	b.qmu.Unlock()

	b.mu.Lock()
	b.history = nil
	b.seq = 0
	b.mu.Unlock()
}
