package broker

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSendAssignsID(t *testing.T) {
	b := New(10)
	b.Register("alice")
	b.Register("bob")

	msg := &Message{Kind: KindRequest, From: "alice", To: "bob", Body: "hi"}
	if !b.Send(msg) {
		t.Fatal("send to registered agent should succeed")
	}
	if msg.ID == "" {
		t.Fatal("broker should assign an id")
	}
	if !strings.HasPrefix(msg.ID, "msg_alice_") {
		t.Fatalf("id should embed the sender, got %q", msg.ID)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("broker should stamp created_at")
	}
	if msg.Priority != PriorityNormal {
		t.Fatalf("default priority should be normal, got %q", msg.Priority)
	}
}

func TestSendUnregisteredRecipient(t *testing.T) {
	b := New(10)
	b.Register("alice")

	if b.Send(&Message{Kind: KindRequest, From: "alice", To: "ghost"}) {
		t.Fatal("send to unregistered agent should fail")
	}
	if got := b.History("", "", 0); len(got) != 0 {
		t.Fatalf("failed send must not be journaled, got %d entries", len(got))
	}
}

func TestFIFOPerRecipient(t *testing.T) {
	b := New(100)
	b.Register("alice")
	b.Register("bob")
	b.Register("carol")

	for i := 0; i < 5; i++ {
		b.Send(&Message{Kind: KindRequest, From: "carol", To: "alice", Body: fmt.Sprintf("a%d", i)})
		// Interleaved sends to another recipient must not disturb order.
		b.Send(&Message{Kind: KindRequest, From: "carol", To: "bob", Body: fmt.Sprintf("b%d", i)})
	}
	for i := 0; i < 5; i++ {
		msg, ok := b.Receive("alice", 0)
		if !ok {
			t.Fatalf("expected message %d for alice", i)
		}
		if want := fmt.Sprintf("a%d", i); msg.Body != want {
			t.Fatalf("out of order: got %q want %q", msg.Body, want)
		}
	}
}

func TestReceiveTimeout(t *testing.T) {
	b := New(10)
	b.Register("alice")

	start := time.Now()
	if _, ok := b.Receive("alice", 50*time.Millisecond); ok {
		t.Fatal("empty queue should time out")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("receive returned before timeout: %v", elapsed)
	}

	// Zero timeout is a non-blocking poll.
	if _, ok := b.Receive("alice", 0); ok {
		t.Fatal("non-blocking poll on empty queue should fail")
	}
}

func TestReceiveWakesOnSend(t *testing.T) {
	b := New(10)
	b.Register("alice")

	done := make(chan *Message, 1)
	go func() {
		msg, _ := b.Receive("alice", 2*time.Second)
		done <- msg
	}()
	time.Sleep(20 * time.Millisecond)
	b.Send(&Message{Kind: KindNotification, From: "bob", To: "alice", Body: "wake"})

	select {
	case msg := <-done:
		if msg == nil || msg.Body != "wake" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked receive was not woken by send")
	}
}

func TestBroadcastFanOut(t *testing.T) {
	b := New(100)
	agents := []string{"alice", "bob", "carol", "dave"}
	for _, a := range agents {
		b.Register(a)
	}

	orig := &Message{Kind: KindBroadcast, From: "alice", To: Broadcast, Body: "ping"}
	if !b.Send(orig) {
		t.Fatal("broadcast should succeed")
	}

	// Sender excluded.
	if n := b.PendingCount("alice"); n != 0 {
		t.Fatalf("sender should not receive its own broadcast, got %d", n)
	}

	seen := map[string]bool{}
	for _, a := range agents[1:] {
		msg, ok := b.Receive(a, 0)
		if !ok {
			t.Fatalf("agent %s missing broadcast copy", a)
		}
		if msg.Body != "ping" {
			t.Fatalf("payload mismatch for %s: %q", a, msg.Body)
		}
		if want := orig.ID + "_to_" + a; msg.ID != want {
			t.Fatalf("derived id mismatch: got %q want %q", msg.ID, want)
		}
		if seen[msg.ID] {
			t.Fatalf("duplicate derived id %q", msg.ID)
		}
		seen[msg.ID] = true
	}

	// Only the original is journaled, not the three copies.
	if got := b.History("", "", 0); len(got) != 1 {
		t.Fatalf("broadcast should journal once, got %d entries", len(got))
	}
}

func TestHistoryBound(t *testing.T) {
	const capacity = 20
	b := New(capacity)
	b.Register("alice")
	b.Register("bob")

	for i := 0; i < capacity+15; i++ {
		b.Send(&Message{Kind: KindRequest, From: "alice", To: "bob", Body: fmt.Sprintf("m%d", i)})
	}

	hist := b.History("", "", 0)
	if len(hist) != capacity {
		t.Fatalf("history should hold %d entries, got %d", capacity, len(hist))
	}
	// Oldest evicted first: the first surviving entry is m15.
	if hist[0].Body != "m15" {
		t.Fatalf("oldest surviving entry should be m15, got %q", hist[0].Body)
	}
	if hist[len(hist)-1].Body != fmt.Sprintf("m%d", capacity+14) {
		t.Fatalf("most recent entry wrong: %q", hist[len(hist)-1].Body)
	}
}

func TestHistoryFilters(t *testing.T) {
	b := New(100)
	for _, a := range []string{"alice", "bob", "carol"} {
		b.Register(a)
	}
	b.Send(&Message{Kind: KindRequest, From: "alice", To: "bob"})
	b.Send(&Message{Kind: KindResponse, From: "bob", To: "alice"})
	b.Send(&Message{Kind: KindRequest, From: "carol", To: "bob"})

	if got := b.History("alice", "", 0); len(got) != 2 {
		t.Fatalf("alice appears in 2 messages, got %d", len(got))
	}
	if got := b.History("", KindRequest, 0); len(got) != 2 {
		t.Fatalf("2 requests expected, got %d", len(got))
	}
	if got := b.History("bob", KindRequest, 1); len(got) != 1 {
		t.Fatalf("limit should trim to 1, got %d", len(got))
	}
}

func TestPeekPendingNonDestructive(t *testing.T) {
	b := New(10)
	b.Register("alice")
	b.Register("bob")
	b.Send(&Message{Kind: KindRequest, From: "bob", To: "alice", Body: "one"})
	b.Send(&Message{Kind: KindRequest, From: "bob", To: "alice", Body: "two"})

	peeked := b.PeekPending("alice")
	if len(peeked) != 2 || peeked[0].Body != "one" || peeked[1].Body != "two" {
		t.Fatalf("unexpected peek result: %+v", peeked)
	}
	// Queue is untouched and still in order.
	msg, ok := b.Receive("alice", 0)
	if !ok || msg.Body != "one" {
		t.Fatalf("peek must not consume, got %+v ok=%v", msg, ok)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	b := New(10)
	b.Register("alice")
	b.Register("bob")
	b.Send(&Message{Kind: KindRequest, From: "bob", To: "alice", Body: "keep"})

	// Re-registration must not drop the queue.
	b.Register("alice")
	if n := b.PendingCount("alice"); n != 1 {
		t.Fatalf("re-registration dropped queued messages, pending=%d", n)
	}
}

func TestHandlersInvoked(t *testing.T) {
	b := New(10)
	var mu sync.Mutex
	var got []string
	b.Register("alice", func(m *Message) {
		mu.Lock()
		got = append(got, m.Body)
		mu.Unlock()
	})
	b.Register("bob")

	b.Send(&Message{Kind: KindRequest, From: "bob", To: "alice", Body: "direct"})
	b.Send(&Message{Kind: KindBroadcast, From: "bob", To: Broadcast, Body: "fanout"})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "direct" || got[1] != "fanout" {
		t.Fatalf("handler calls: %v", got)
	}
}

func TestConcurrentSendReceive(t *testing.T) {
	b := New(DefaultMaxHistory)
	b.Register("sink")
	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			from := fmt.Sprintf("agent%d", p)
			for i := 0; i < perProducer; i++ {
				if !b.Send(&Message{Kind: KindRequest, From: from, To: "sink", Body: fmt.Sprintf("%s-%d", from, i)}) {
					t.Errorf("send failed for %s", from)
					return
				}
			}
		}(p)
	}

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for received < producers*perProducer {
			if _, ok := b.Receive("sink", time.Second); !ok {
				return
			}
			received++
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer stalled")
	}
	if received != producers*perProducer {
		t.Fatalf("received %d of %d messages", received, producers*perProducer)
	}
}

func TestReset(t *testing.T) {
	b := New(10)
	b.Register("alice")
	b.Register("bob")
	b.Send(&Message{Kind: KindRequest, From: "alice", To: "bob"})

	b.Reset()
	if len(b.Agents()) != 0 {
		t.Fatal("reset should drop registrations")
	}
	if len(b.History("", "", 0)) != 0 {
		t.Fatal("reset should drop history")
	}
}

func TestParseEnums(t *testing.T) {
	if _, err := ParseMessageKind("delegation"); err != nil {
		t.Fatalf("delegation should parse: %v", err)
	}
	if _, err := ParseMessageKind("telepathy"); err == nil {
		t.Fatal("unknown kind should be rejected")
	}
	if _, err := ParsePriority("urgent"); err != nil {
		t.Fatalf("urgent should parse: %v", err)
	}
	if _, err := ParsePriority("whenever"); err == nil {
		t.Fatal("unknown priority should be rejected")
	}
}
