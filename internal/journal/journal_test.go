package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/forgeloop/forgeloop/internal/broker"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)

	base := time.Now().Add(-time.Minute)
	msgs := []*broker.Message{
		{ID: "m1", Kind: broker.KindRequest, From: "alice", To: "bob", Body: "hello", CreatedAt: base},
		{ID: "m2", Kind: broker.KindDelegation, From: "engine", To: "bob", Body: "do it", CreatedAt: base.Add(time.Second)},
		{ID: "m3", Kind: broker.KindResponse, From: "bob", To: "alice", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, m := range msgs {
		m.Priority = broker.PriorityNormal
		if err := j.Record(m); err != nil {
			t.Fatalf("record %s: %v", m.ID, err)
		}
	}

	all, err := j.Recent("", "", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].MessageID != "m3" {
		t.Fatalf("newest first expected, got %s", all[0].MessageID)
	}
	if all[2].BodyBytes != len("hello") {
		t.Fatalf("body bytes mismatch: %d", all[2].BodyBytes)
	}

	bobs, err := j.Recent("bob", "", 0)
	if err != nil {
		t.Fatalf("recent bob: %v", err)
	}
	if len(bobs) != 3 {
		t.Fatalf("bob appears in all 3, got %d", len(bobs))
	}

	delegations, err := j.Recent("", string(broker.KindDelegation), 0)
	if err != nil {
		t.Fatalf("recent delegations: %v", err)
	}
	if len(delegations) != 1 || delegations[0].MessageID != "m2" {
		t.Fatalf("unexpected delegation entries: %+v", delegations)
	}

	limited, err := j.Recent("", "", 2)
	if err != nil {
		t.Fatalf("recent limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit 2 expected, got %d", len(limited))
	}
}

func TestRecordDuplicateIgnored(t *testing.T) {
	j := openTestJournal(t)

	msg := &broker.Message{ID: "dup", Kind: broker.KindRequest, From: "a", To: "b", Priority: broker.PriorityNormal, CreatedAt: time.Now()}
	if err := j.Record(msg); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := j.Record(msg); err != nil {
		t.Fatalf("duplicate record should be ignored, got %v", err)
	}
	n, err := j.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestBrokerIntegration(t *testing.T) {
	j := openTestJournal(t)
	b := broker.New(100)
	b.SetRecorder(j)
	b.Register("alice")
	b.Register("bob")

	b.Send(&broker.Message{Kind: broker.KindRequest, From: "alice", To: "bob", Body: "journaled"})

	entries, err := j.Recent("", "", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 || entries[0].From != "alice" {
		t.Fatalf("broker send not journaled: %+v", entries)
	}
}
